// Command docgen builds docs/api.adoc from the @Title/@Route annotations on
// the HTTP handlers in internal/api.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

type Endpoint struct {
	Title       string
	Route       string
	Description string
	Response    string
}

var (
	reTitle = regexp.MustCompile(`^\s*// @Title: (.*)`)
	reRoute = regexp.MustCompile(`^\s*// @Route: (.*)`)
	reDesc  = regexp.MustCompile(`^\s*// @Description: (.*)`)
	reResp  = regexp.MustCompile(`^\s*// @Response: (.*)`)
)

func main() {
	apiDir := flag.String("api", "internal/api", "directory with annotated handlers")
	out := flag.String("out", "docs/api.adoc", "output file")
	flag.Parse()

	endpoints, err := collect(*apiDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "docgen:", err)
		os.Exit(1)
	}

	f, err := os.Create(*out)
	if err != nil {
		fmt.Fprintln(os.Stderr, "docgen:", err)
		os.Exit(1)
	}
	defer f.Close()

	if err := render(f, endpoints); err != nil {
		fmt.Fprintln(os.Stderr, "docgen:", err)
		os.Exit(1)
	}
	fmt.Printf("Generated %s (%d endpoints)\n", *out, len(endpoints))
}

// collect scans every non-test Go file in dir. An annotation block ends at
// its @Response line.
func collect(dir string) ([]Endpoint, error) {
	files, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var endpoints []Endpoint
	for _, file := range files {
		name := file.Name()
		if !strings.HasSuffix(name, ".go") || strings.HasSuffix(name, "_test.go") {
			continue
		}
		found, err := scanFile(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		endpoints = append(endpoints, found...)
	}

	sort.SliceStable(endpoints, func(i, j int) bool {
		return routePath(endpoints[i].Route) < routePath(endpoints[j].Route)
	})
	return endpoints, nil
}

func scanFile(path string) ([]Endpoint, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var (
		endpoints []Endpoint
		current   Endpoint
	)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()

		if match := reTitle.FindStringSubmatch(line); len(match) > 1 {
			current.Title = strings.TrimSpace(match[1])
		}
		if match := reRoute.FindStringSubmatch(line); len(match) > 1 {
			current.Route = strings.TrimSpace(match[1])
		}
		if match := reDesc.FindStringSubmatch(line); len(match) > 1 {
			current.Description = strings.TrimSpace(match[1])
		}
		if match := reResp.FindStringSubmatch(line); len(match) > 1 {
			current.Response = strings.TrimSpace(match[1])
			if current.Title != "" && current.Route != "" {
				endpoints = append(endpoints, current)
			}
			current = Endpoint{}
		}
	}
	return endpoints, scanner.Err()
}

func routePath(route string) string {
	_, path, _ := strings.Cut(route, " ")
	return path
}

func render(w io.Writer, endpoints []Endpoint) error {
	var b strings.Builder
	b.WriteString("= kvs HTTP API\n:toc:\n\n")
	b.WriteString("Generated by `go run ./cmd/docgen` from the handler annotations. All routes are read-only and served from committed state.\n")

	for _, ep := range endpoints {
		fmt.Fprintf(&b, "\n== %s\n\n", ep.Title)
		fmt.Fprintf(&b, "`%s`\n\n", ep.Route)
		if ep.Description != "" {
			fmt.Fprintf(&b, "%s\n\n", ep.Description)
		}
		if ep.Response != "" {
			fmt.Fprintf(&b, "Response::\n+\n----\n%s\n----\n", ep.Response)
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}
