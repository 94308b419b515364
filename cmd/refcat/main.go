// Command refcat is a small inspector for a reference spec or a
// lazy-map directory: ls, cat, info, and find against the virtual
// filesystem it describes.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"sigs.k8s.io/yaml"

	"github.com/pbchekin/filesystem-spec/lazyref"
	"github.com/pbchekin/filesystem-spec/vfs"
)

var (
	dashSpec   string
	dashDir    string
	dashTarget string
	dashCache  int
)

func init() {
	flag.StringVar(&dashSpec, "spec", "", "path to a JSON or YAML reference spec")
	flag.StringVar(&dashDir, "dir", "", "path to a lazy (columnar-paged) reference directory")
	flag.StringVar(&dashTarget, "target", "", "default backing URL substituted for a null reference URL")
	flag.IntVar(&dashCache, "cache", 128, "lazy-map page cache capacity, in records")
}

func exitf(f string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, f, args...)
	os.Exit(1)
}

func buildFS() *vfs.FS {
	backends := vfs.DefaultBackends()
	opts := vfs.Options{Target: dashTarget}

	switch {
	case dashDir != "":
		in := os.DirFS(dashDir)
		m, err := lazyref.Open(".", in, nil, dashCache)
		if err != nil {
			exitf("opening lazy reference dir %s: %s\n", dashDir, err)
		}
		return vfs.New(m, backends, opts)
	case dashSpec != "":
		data, err := os.ReadFile(dashSpec)
		if err != nil {
			exitf("reading spec %s: %s\n", dashSpec, err)
		}
		if filepath.Ext(dashSpec) == ".yaml" || filepath.Ext(dashSpec) == ".yml" {
			data, err = yaml.YAMLToJSON(data)
			if err != nil {
				exitf("converting %s from YAML: %s\n", dashSpec, err)
			}
		}
		f, err := vfs.NewFromJSON(data, nil, false, backends, opts)
		if err != nil {
			exitf("parsing spec %s: %s\n", dashSpec, err)
		}
		return f
	default:
		exitf("one of -spec or -dir is required\n")
		return nil
	}
}

func cmdLs(f *vfs.FS, args []string) {
	dir := ""
	if len(args) > 0 {
		dir = args[0]
	}
	entries, err := f.Ls(dir)
	if err != nil {
		exitf("ls %s: %s\n", dir, err)
	}
	for _, e := range entries {
		size := "-"
		if e.Size != nil {
			size = fmt.Sprintf("%d", *e.Size)
		}
		kind := "file"
		if e.Dir {
			kind = "dir"
		}
		fmt.Printf("%-4s %10s  %s\n", kind, size, e.Name)
	}
}

func cmdInfo(f *vfs.FS, args []string) {
	if len(args) != 1 {
		exitf("usage: refcat info <path>\n")
	}
	info, err := f.Info(context.Background(), args[0])
	if err != nil {
		exitf("info %s: %s\n", args[0], err)
	}
	size := "-"
	if info.Size != nil {
		size = fmt.Sprintf("%d", *info.Size)
	}
	fmt.Printf("name: %s\ndir:  %v\nsize: %s\n", info.Name, info.Dir, size)
}

func cmdCat(f *vfs.FS, args []string) {
	if len(args) != 1 {
		exitf("usage: refcat cat <path>\n")
	}
	data, err := f.CatFile(context.Background(), args[0], nil, nil)
	if err != nil {
		exitf("cat %s: %s\n", args[0], err)
	}
	os.Stdout.Write(data)
}

func cmdFind(f *vfs.FS, args []string) {
	dir := ""
	if len(args) > 0 {
		dir = args[0]
	}
	for _, p := range f.Find(dir) {
		fmt.Println(p)
	}
}

func main() {
	flag.Parse()
	args := flag.Args()
	if len(args) == 0 {
		fmt.Fprintf(os.Stderr, "usage:\n")
		fmt.Fprintf(os.Stderr, "    %s -spec <spec.json> ls [dir]\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "    %s -spec <spec.json> cat <path>\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "    %s -spec <spec.json> info <path>\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "    %s -spec <spec.json> find [dir]\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "    %s -dir <lazy-root> ls|cat|info|find ...\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "flag usage:\n")
		flag.Usage()
		os.Exit(1)
	}

	f := buildFS()
	switch args[0] {
	case "ls":
		cmdLs(f, args[1:])
	case "cat":
		cmdCat(f, args[1:])
	case "info":
		cmdInfo(f, args[1:])
	case "find":
		cmdFind(f, args[1:])
	default:
		exitf("commands: ls, cat, info, find\n")
	}
}
