package session

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Inputs are the files of one recording session.
type Inputs struct {
	Dir       string
	Name      string
	Nodes     []NodeFiles // sorted by node ID
	FlightLog string
}

// NodeFiles lists the CSV logs of one node directory.
type NodeFiles struct {
	ID    string
	Files []string // sorted
}

// DiscoverOptions locate node and drone files inside a session directory.
type DiscoverOptions struct {
	Name       string // session name, defaults to the directory base name
	NodePrefix string // node directories start with this prefix
	DroneDir   string // subdirectory holding the flight log
	FlightLog  string // explicit flight log path, skips the drone directory lookup
}

// Discover finds the node logs and the flight log of the session in dir.
//
// Every subdirectory whose name starts with NodePrefix is a node; its *.csv
// files (case-insensitive) are that node's logs. The flight log is
// <DroneDir>/<name>.bin, or the only *.bin file in DroneDir when no file
// carries the session name.
func Discover(dir string, opts DiscoverOptions) (*Inputs, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: session directory: %w", ErrMissingInput, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrMissingInput, dir)
	}

	in := &Inputs{
		Dir:  dir,
		Name: opts.Name,
	}
	if in.Name == "" {
		in.Name = filepath.Base(filepath.Clean(dir))
	}

	if in.Nodes, err = discoverNodes(dir, opts.NodePrefix); err != nil {
		return nil, err
	}
	if len(in.Nodes) == 0 {
		return nil, fmt.Errorf("%w: no %s* directories with CSV logs in %s", ErrMissingInput, opts.NodePrefix, dir)
	}

	if opts.FlightLog != "" {
		if _, err = os.Stat(opts.FlightLog); err != nil {
			return nil, fmt.Errorf("%w: flight log: %w", ErrMissingInput, err)
		}
		in.FlightLog = opts.FlightLog
		return in, nil
	}

	if in.FlightLog, err = discoverFlightLog(filepath.Join(dir, opts.DroneDir), in.Name); err != nil {
		return nil, err
	}
	return in, nil
}

func discoverNodes(dir, prefix string) ([]NodeFiles, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading session directory: %w", err)
	}

	var nodes []NodeFiles
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), prefix) {
			continue
		}

		files, err := filesWithExt(filepath.Join(dir, e.Name()), ".csv")
		if err != nil {
			return nil, err
		}
		if len(files) == 0 {
			continue
		}
		nodes = append(nodes, NodeFiles{ID: e.Name(), Files: files})
	}

	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID < nodes[j].ID })
	return nodes, nil
}

func discoverFlightLog(droneDir, name string) (string, error) {
	logs, err := filesWithExt(droneDir, ".bin")
	if err != nil {
		return "", fmt.Errorf("%w: flight log: %w", ErrMissingInput, err)
	}

	for _, path := range logs {
		if strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)) == name {
			return path, nil
		}
	}

	switch len(logs) {
	case 0:
		return "", fmt.Errorf("%w: no .bin flight log in %s", ErrMissingInput, droneDir)
	case 1:
		return logs[0], nil
	default:
		return "", fmt.Errorf("%w: %d flight logs in %s and none named %s.bin", ErrMissingInput, len(logs), droneDir, name)
	}
}

func filesWithExt(dir, ext string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ext) {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	sort.Strings(files)
	return files, nil
}
