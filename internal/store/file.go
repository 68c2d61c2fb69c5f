package store

import (
	"context"
	"os"
	"path/filepath"
)

type fileStore struct {
	path string
}

func openFile(path string) (fileStore, error) {
	err := os.MkdirAll(filepath.Dir(path), 0755)
	if err != nil {
		return fileStore{}, err
	}
	return fileStore{path: path}, nil
}

func (s fileStore) Load(ctx context.Context) (State, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return State{}.normalized(), nil
	}
	if err != nil {
		return State{}, err
	}
	return decodeState(data)
}

// Save writes to a temporary file in the same directory and renames it over
// the old file so readers never see a partial write.
func (s fileStore) Save(ctx context.Context, state State) error {
	data, err := encodeState(state)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	_, err = tmp.Write(data)
	if err != nil {
		tmp.Close()
		return err
	}
	err = tmp.Sync()
	if err != nil {
		tmp.Close()
		return err
	}
	err = tmp.Close()
	if err != nil {
		return err
	}
	return os.Rename(tmp.Name(), s.path)
}

func (s fileStore) Close() error {
	return nil
}
