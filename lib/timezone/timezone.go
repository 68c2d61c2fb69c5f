package timezone

import "time"

// Location is the registrar's local time. Saskatchewan does not observe DST.
var Location *time.Location

func init() {
	var err error
	Location, err = time.LoadLocation("America/Regina")
	if err != nil {
		panic(err)
	}
}

// Now returns the current time in the registrar's timezone, term boundaries
// are computed from Month() so the server's own zone must not leak in.
func Now() time.Time {
	return time.Now().In(Location)
}
