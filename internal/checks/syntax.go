package checks

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/spf13/afero"
)

// maxSyntaxErrors bounds how many errors are collected per file.
const maxSyntaxErrors = 20

// SyntaxError is one ERROR or MISSING node found by tree-sitter.
type SyntaxError struct {
	File    string `json:"file"`
	Line    int    `json:"line"`
	Column  int    `json:"column"`
	Message string `json:"message"`
}

func (e SyntaxError) String() string {
	return fmt.Sprintf("%s:%d:%d: %s", e.File, e.Line, e.Column, e.Message)
}

// SyntaxChecker parses source files with tree-sitter grammars.
type SyntaxChecker struct {
	fs afero.Fs
}

// NewSyntaxChecker creates a SyntaxChecker reading from fs.
func NewSyntaxChecker(fs afero.Fs) *SyntaxChecker {
	return &SyntaxChecker{fs: fs}
}

func languageFor(path string) *sitter.Language {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".py", ".pyi":
		return python.GetLanguage()
	case ".go":
		return golang.GetLanguage()
	default:
		return nil
	}
}

// SupportedExtension reports whether ext has a grammar.
func SupportedExtension(ext string) bool {
	return languageFor("x"+ext) != nil
}

// CheckSource parses src and returns its syntax errors. Unsupported file
// types yield no errors.
func (c *SyntaxChecker) CheckSource(ctx context.Context, name string, src []byte) ([]SyntaxError, error) {
	lang := languageFor(name)
	if lang == nil {
		return nil, nil
	}

	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(lang)

	tree, err := parser.ParseCtx(ctx, nil, src)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", name, err)
	}
	defer tree.Close()

	root := tree.RootNode()
	if !root.HasError() {
		return nil, nil
	}
	var errs []SyntaxError
	collectErrors(root, name, src, &errs, 0)
	if len(errs) == 0 {
		errs = append(errs, SyntaxError{File: name, Line: 1, Message: "syntax error"})
	}
	return errs, nil
}

// CheckTree parses every file under dir whose extension is in exts.
// The result is ordered by file path.
func (c *SyntaxChecker) CheckTree(ctx context.Context, dir string, exts []string) (files int, errs []SyntaxError, err error) {
	want := map[string]bool{}
	for _, e := range exts {
		want[strings.ToLower(e)] = true
	}

	var paths []string
	err = afero.Walk(c.fs, dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			if path != dir && skipDir(info.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if want[strings.ToLower(filepath.Ext(path))] {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return 0, nil, fmt.Errorf("walk %s: %w", dir, err)
	}
	sort.Strings(paths)

	for _, p := range paths {
		src, err := afero.ReadFile(c.fs, p)
		if err != nil {
			return files, errs, fmt.Errorf("read %s: %w", p, err)
		}
		rel, _ := filepath.Rel(dir, p)
		fileErrs, err := c.CheckSource(ctx, rel, src)
		if err != nil {
			return files, errs, err
		}
		files++
		errs = append(errs, fileErrs...)
	}
	return files, errs, nil
}

func skipDir(name string) bool {
	switch name {
	case "__pycache__", "node_modules", "vendor", "testdata":
		return true
	}
	return strings.HasPrefix(name, ".")
}

func collectErrors(node *sitter.Node, file string, src []byte, errs *[]SyntaxError, depth int) {
	if depth > 1000 || len(*errs) >= maxSyntaxErrors {
		return
	}
	if node.IsError() || node.IsMissing() {
		p := node.StartPoint()
		msg := "syntax error"
		if node.IsMissing() {
			msg = fmt.Sprintf("missing %q", node.Type())
		} else if snippet := nodeText(node, src); snippet != "" {
			msg = fmt.Sprintf("unexpected %q", snippet)
		}
		*errs = append(*errs, SyntaxError{
			File:    file,
			Line:    int(p.Row) + 1,
			Column:  int(p.Column) + 1,
			Message: msg,
		})
		if node.IsError() {
			return
		}
	}
	for i := 0; i < int(node.ChildCount()); i++ {
		collectErrors(node.Child(i), file, src, errs, depth+1)
	}
}

func nodeText(node *sitter.Node, src []byte) string {
	start, end := node.StartByte(), node.EndByte()
	if end > uint32(len(src)) {
		end = uint32(len(src))
	}
	if start >= end {
		return ""
	}
	s := strings.TrimSpace(string(src[start:end]))
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	if len(s) > 40 {
		s = s[:40] + "…"
	}
	return s
}
