package restyutil

import (
	"fmt"
	"path"
	"strings"
	"sync/atomic"

	"github.com/go-resty/resty/v2"
)

type Output interface {
	Write(id string, contents string)
}

// DumpExchanges writes every request/response pair the client completes to
// output. Ids are sequential per client and carry the method and the last
// path segment, e.g. "0003-POST-search". `output` can be nil, in which case
// this is a no-op.
func DumpExchanges(client *resty.Client, output Output) {
	if output == nil {
		return
	}

	var idcounter uint64
	client.OnAfterResponse(func(_ *resty.Client, res *resty.Response) error {
		if res.Request.RawRequest == nil {
			return nil
		}
		id := atomic.AddUint64(&idcounter, 1)
		output.Write(messageId(id, res.Request.Method, res.Request.RawRequest.URL.Path), formatHttpMessage(res))
		return nil
	})
}

func messageId(id uint64, method, urlPath string) string {
	name := path.Base(strings.TrimRight(urlPath, "/"))
	if name == "." || name == "/" || name == "" {
		name = "root"
	}
	return fmt.Sprintf("%04d-%s-%s", id, method, name)
}
