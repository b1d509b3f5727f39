package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/supporthq/sdkdoctor/internal/redact"
)

// redact masks credential-shaped substrings in files or stdin before they are
// pasted into a support ticket or uploaded for analysis. The redacted text
// goes to stdout (or back to the file with -w); the manifest of what was
// masked goes to stderr so piping stays clean.

func main() {
	write := flag.Bool("w", false, "rewrite files in place instead of printing to stdout")
	jsonOut := flag.Bool("json", false, "emit the manifest as JSON on stderr")
	quiet := flag.Bool("q", false, "suppress the manifest")
	flag.Parse()

	scanner := redact.NewScanner()

	var merged map[string]int
	exitCode := 0

	if flag.NArg() == 0 {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: read stdin: %v\n", err)
			os.Exit(1)
		}
		res := scanner.Redact(string(data))
		fmt.Print(res.Text)
		merged = redact.Merge(merged, res.Counts)
	} else {
		for _, path := range flag.Args() {
			data, err := os.ReadFile(path)
			if err != nil {
				fmt.Fprintf(os.Stderr, "error: %v\n", err)
				exitCode = 1
				continue
			}
			res := scanner.Redact(string(data))
			merged = redact.Merge(merged, res.Counts)
			if *write {
				if res.Masked {
					info, _ := os.Stat(path)
					mode := os.FileMode(0o644)
					if info != nil {
						mode = info.Mode()
					}
					if err := os.WriteFile(path, []byte(res.Text), mode); err != nil {
						fmt.Fprintf(os.Stderr, "error: write %s: %v\n", path, err)
						exitCode = 1
					}
				}
			} else {
				fmt.Print(res.Text)
			}
		}
	}

	if !*quiet {
		printManifest(merged, *jsonOut)
	}
	os.Exit(exitCode)
}

func printManifest(counts map[string]int, asJSON bool) {
	if asJSON {
		out := counts
		if out == nil {
			out = map[string]int{}
		}
		json.NewEncoder(os.Stderr).Encode(out)
		return
	}
	if len(counts) == 0 {
		fmt.Fprintln(os.Stderr, "redact: nothing masked")
		return
	}
	categories := make([]string, 0, len(counts))
	for c := range counts {
		categories = append(categories, c)
	}
	sort.Strings(categories)
	fmt.Fprintln(os.Stderr, "redact: masked:")
	for _, c := range categories {
		fmt.Fprintf(os.Stderr, "  %-24s %d\n", c, counts[c])
	}
}
