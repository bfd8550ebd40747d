// Copyright 2026 The Hearth Authors
// SPDX-License-Identifier: Apache-2.0

package ticketui

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/alecthomas/chroma/v2/quick"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"github.com/muesli/termenv"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/text"
)

// markdownParserInstance is initialized once and reused. The parser
// configuration never changes and the goldmark Parser is safe to
// share; actual parsing creates per-call state via Parse(reader).
var (
	markdownParserInstance goldmark.Markdown
	markdownParserOnce     sync.Once
)

func getMarkdownParser() goldmark.Markdown {
	markdownParserOnce.Do(func() {
		markdownParserInstance = goldmark.New(
			goldmark.WithExtensions(extension.GFM),
		)
	})
	return markdownParserInstance
}

// RenderMarkdown parses markdown text and renders it as styled
// terminal output wrapped to width. Soft line breaks within
// paragraphs become spaces so hard-wrapped source reflows at any
// terminal width; code blocks keep their formatting and get chroma
// syntax highlighting.
func RenderMarkdown(input string, theme Theme, width int) string {
	if input == "" {
		return ""
	}
	source := []byte(input)
	document := getMarkdownParser().Parser().Parse(text.NewReader(source))

	// Force the ANSI256 color profile: this output is always for
	// terminal display inside the TUI, so auto-detection (which sees
	// no TTY under tests) must be bypassed.
	lipRenderer := lipgloss.NewRenderer(os.Stderr, termenv.WithProfile(termenv.ANSI256))
	lipRenderer.SetColorProfile(termenv.ANSI256)

	renderer := &markdownRenderer{
		source:      source,
		theme:       theme,
		width:       width,
		lipRenderer: lipRenderer,
	}
	ast.Walk(document, renderer.walk)

	return strings.TrimRight(renderer.output.String(), "\n")
}

// markdownRenderer walks a goldmark AST and produces styled terminal
// text. It uses a direct ast.Walk rather than goldmark's renderer
// interface because terminal rendering needs accumulate-then-wrap
// semantics: paragraph inline content collects in a buffer and gets
// word-wrapped as a unit when the paragraph closes.
type markdownRenderer struct {
	source []byte
	theme  Theme
	width  int

	output strings.Builder

	// Inline accumulator, flushed with word-wrap when the containing
	// block closes.
	inline strings.Builder

	// Block indentation: two spaces per nested container (list,
	// blockquote).
	depth int

	// Pending bullet for the first line of the current list item.
	pendingBullet string

	// Inline style counters; counters rather than booleans so nested
	// emphasis works.
	boldCount   int
	italicCount int

	inBlockquote int

	// Ordered-list counters, one per nesting level.
	listCounters []int

	lipRenderer *lipgloss.Renderer
}

func (renderer *markdownRenderer) newStyle() lipgloss.Style {
	return renderer.lipRenderer.NewStyle()
}

func (renderer *markdownRenderer) indent() string {
	return strings.Repeat("  ", renderer.depth)
}

func (renderer *markdownRenderer) contentWidth() int {
	width := renderer.width - 2*renderer.depth
	if width < 10 {
		width = 10
	}
	return width
}

// flushInline word-wraps the accumulated inline content, applies the
// indent (and pending bullet, if any) per line, and writes it out
// followed by a blank line.
func (renderer *markdownRenderer) flushInline() {
	content := renderer.inline.String()
	renderer.inline.Reset()
	if content == "" {
		return
	}

	wrapped := ansi.Wrap(content, renderer.contentWidth(), " ,.;-+|")
	prefix := renderer.indent()
	quote := ""
	if renderer.inBlockquote > 0 {
		quote = renderer.newStyle().Foreground(renderer.theme.BorderColor).Render("│ ")
	}

	for index, line := range strings.Split(wrapped, "\n") {
		head := prefix
		if index == 0 && renderer.pendingBullet != "" {
			head = renderer.pendingBullet
			renderer.pendingBullet = ""
		}
		renderer.output.WriteString(head + quote + line + "\n")
	}
	renderer.output.WriteString("\n")
}

func (renderer *markdownRenderer) styledText(content string) string {
	style := renderer.newStyle().Foreground(renderer.theme.NormalText)
	if renderer.boldCount > 0 {
		style = style.Bold(true)
	}
	if renderer.italicCount > 0 {
		style = style.Italic(true)
	}
	return style.Render(content)
}

// highlightCode uses chroma to syntax-highlight a fenced code block.
// Unknown languages and chroma errors degrade to faint plain text.
func (renderer *markdownRenderer) highlightCode(code, language string) string {
	if language != "" {
		var buffer strings.Builder
		if err := quick.Highlight(&buffer, code, language, "terminal256", "monokai"); err == nil {
			return buffer.String()
		}
	}
	return renderer.newStyle().Foreground(renderer.theme.FaintText).Render(code)
}

func (renderer *markdownRenderer) writeCodeBlock(code, language string) {
	highlighted := renderer.highlightCode(strings.TrimRight(code, "\n"), language)
	prefix := renderer.indent() + "  "
	for _, line := range strings.Split(highlighted, "\n") {
		renderer.output.WriteString(prefix + line + "\n")
	}
	renderer.output.WriteString("\n")
}

// codeBlockText extracts the raw text of a code block node.
func (renderer *markdownRenderer) codeBlockText(node ast.Node) string {
	var buffer strings.Builder
	lines := node.Lines()
	for index := 0; index < lines.Len(); index++ {
		segment := lines.At(index)
		buffer.Write(segment.Value(renderer.source))
	}
	return buffer.String()
}

func (renderer *markdownRenderer) walk(node ast.Node, entering bool) (ast.WalkStatus, error) {
	switch typed := node.(type) {

	case *ast.Document:
		// Nothing to do.

	case *ast.Heading:
		if entering {
			renderer.inline.Reset()
		} else {
			content := renderer.inline.String()
			renderer.inline.Reset()
			style := renderer.newStyle().
				Foreground(renderer.theme.HeaderForeground).
				Bold(true)
			marker := strings.Repeat("#", typed.Level) + " "
			renderer.output.WriteString(style.Render(marker+ansi.Strip(content)) + "\n\n")
		}

	case *ast.Paragraph, *ast.TextBlock:
		if entering {
			renderer.inline.Reset()
		} else {
			renderer.flushInline()
		}

	case *ast.Blockquote:
		if entering {
			renderer.inBlockquote++
		} else {
			renderer.inBlockquote--
		}

	case *ast.List:
		if entering {
			renderer.listCounters = append(renderer.listCounters, typed.Start)
			renderer.depth++
		} else {
			renderer.listCounters = renderer.listCounters[:len(renderer.listCounters)-1]
			renderer.depth--
		}

	case *ast.ListItem:
		if entering {
			parent, ok := node.Parent().(*ast.List)
			marker := "• "
			if ok && parent.IsOrdered() {
				last := len(renderer.listCounters) - 1
				marker = fmt.Sprintf("%d. ", renderer.listCounters[last])
				renderer.listCounters[last]++
			}
			bulletStyle := renderer.newStyle().Foreground(renderer.theme.FaintText)
			renderer.pendingBullet = strings.Repeat("  ", renderer.depth-1) +
				bulletStyle.Render(marker)
		}

	case *ast.FencedCodeBlock:
		if entering {
			language := string(typed.Language(renderer.source))
			renderer.writeCodeBlock(renderer.codeBlockText(node), language)
			return ast.WalkSkipChildren, nil
		}

	case *ast.CodeBlock:
		if entering {
			renderer.writeCodeBlock(renderer.codeBlockText(node), "")
			return ast.WalkSkipChildren, nil
		}

	case *ast.ThematicBreak:
		if entering {
			rule := strings.Repeat("─", renderer.contentWidth())
			renderer.output.WriteString(
				renderer.newStyle().Foreground(renderer.theme.BorderColor).Render(rule) + "\n\n")
		}

	case *ast.Emphasis:
		if entering {
			if typed.Level >= 2 {
				renderer.boldCount++
			} else {
				renderer.italicCount++
			}
		} else {
			if typed.Level >= 2 {
				renderer.boldCount--
			} else {
				renderer.italicCount--
			}
		}

	case *ast.CodeSpan:
		if entering {
			var buffer strings.Builder
			for child := node.FirstChild(); child != nil; child = child.NextSibling() {
				if textNode, ok := child.(*ast.Text); ok {
					buffer.Write(textNode.Segment.Value(renderer.source))
				}
			}
			style := renderer.newStyle().Foreground(renderer.theme.MatchForeground)
			renderer.inline.WriteString(style.Render(buffer.String()))
			return ast.WalkSkipChildren, nil
		}

	case *ast.Link:
		if !entering {
			url := renderer.newStyle().Foreground(renderer.theme.FaintText).
				Render(" (" + string(typed.Destination) + ")")
			renderer.inline.WriteString(url)
		}

	case *ast.AutoLink:
		if entering {
			url := string(typed.URL(renderer.source))
			style := renderer.newStyle().Foreground(renderer.theme.HeaderForeground)
			renderer.inline.WriteString(style.Render(url))
		}

	case *ast.Text:
		if entering {
			renderer.inline.WriteString(renderer.styledText(string(typed.Segment.Value(renderer.source))))
			if typed.SoftLineBreak() {
				renderer.inline.WriteString(" ")
			}
			if typed.HardLineBreak() {
				renderer.inline.WriteString("\n")
			}
		}
	}

	return ast.WalkContinue, nil
}
