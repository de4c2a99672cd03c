package web

import (
	"bytes"
	"encoding/json"
	"html/template"
	"strings"

	"github.com/m2tx/research_agent/internal/model"
	"github.com/pkg/errors"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer"
	gmhtml "github.com/yuin/goldmark/renderer/html"
	"github.com/yuin/goldmark/util"
)

type pageData struct {
	Query    string
	Warning  string
	Failure  string
	Messages []messageView
}

type messageView struct {
	Label     string
	ToolName  string
	HTML      template.HTML
	ToolCalls []toolCallView
}

type toolCallView struct {
	Name string
	Args string
}

func newMarkdown() goldmark.Markdown {
	return goldmark.New(
		goldmark.WithExtensions(extension.GFM),
		goldmark.WithRendererOptions(
			gmhtml.WithHardWraps(),
			renderer.WithNodeRenderers(util.Prioritized(escapedHTMLRenderer{}, 100)),
		),
	)
}

// escapedHTMLRenderer shows raw HTML from model or tool output as text.
// The default renderer would drop it, and with it any text sharing the block.
type escapedHTMLRenderer struct{}

func (r escapedHTMLRenderer) RegisterFuncs(reg renderer.NodeRendererFuncRegisterer) {
	reg.Register(ast.KindHTMLBlock, r.renderHTMLBlock)
	reg.Register(ast.KindRawHTML, r.renderRawHTML)
}

func (r escapedHTMLRenderer) renderHTMLBlock(w util.BufWriter, source []byte, node ast.Node, entering bool) (ast.WalkStatus, error) {
	n := node.(*ast.HTMLBlock)
	if entering {
		_, _ = w.WriteString("<p>")
		lines := n.Lines()
		for i := 0; i < lines.Len(); i++ {
			line := lines.At(i)
			_, _ = w.Write(util.EscapeHTML(line.Value(source)))
		}
		return ast.WalkContinue, nil
	}

	if n.HasClosure() {
		_, _ = w.Write(util.EscapeHTML(n.ClosureLine.Value(source)))
	}
	_, _ = w.WriteString("</p>\n")
	return ast.WalkContinue, nil
}

func (r escapedHTMLRenderer) renderRawHTML(w util.BufWriter, source []byte, node ast.Node, entering bool) (ast.WalkStatus, error) {
	if !entering {
		return ast.WalkSkipChildren, nil
	}
	n := node.(*ast.RawHTML)
	for i := 0; i < n.Segments.Len(); i++ {
		segment := n.Segments.At(i)
		_, _ = w.Write(util.EscapeHTML(segment.Value(source)))
	}
	return ast.WalkSkipChildren, nil
}

// roleLabel names a message by its role, e.g. "Tool Message".
func roleLabel(role model.Role) string {
	name := string(role)
	if name == "" {
		return "Message"
	}
	return strings.ToUpper(name[:1]) + name[1:] + " Message"
}

func (s *Server) views(messages []model.Message) ([]messageView, error) {
	views := make([]messageView, 0, len(messages))
	for _, m := range messages {
		var buf bytes.Buffer
		if err := s.markdown.Convert([]byte(m.Content), &buf); err != nil {
			return nil, errors.Wrap(err, "render markdown")
		}

		view := messageView{
			Label: roleLabel(m.Role),
			HTML:  template.HTML(buf.String()),
		}
		if m.Role == model.RoleTool {
			view.ToolName = m.Name
		}
		for _, call := range m.ToolCalls {
			args, err := json.Marshal(call.Args)
			if err != nil {
				return nil, errors.Wrapf(err, "encode %s arguments", call.Name)
			}
			view.ToolCalls = append(view.ToolCalls, toolCallView{Name: call.Name, Args: string(args)})
		}
		views = append(views, view)
	}
	return views, nil
}

func (s *Server) renderPage(data pageData) (string, error) {
	var buf bytes.Buffer
	if err := s.page.Execute(&buf, data); err != nil {
		return "", errors.Wrap(err, "render page")
	}
	return buf.String(), nil
}
