package tui

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/jxwalker/docfetch/internal/apiclient"
	"github.com/jxwalker/docfetch/internal/engine"
	"github.com/jxwalker/docfetch/internal/logging"
	"github.com/jxwalker/docfetch/internal/projection"
)

// sizer is implemented by engines that can report stored snapshot sizes.
type sizer interface {
	StatSize(*engine.Descriptor) (int64, bool)
}

func layerOf(d *engine.Descriptor) apiclient.Layer {
	return apiclient.Layer{DocumentID: d.DocumentID(), Name: d.LayerName()}
}

func (m *Model) View() string {
	var sb strings.Builder
	sb.WriteString(m.renderHeader())
	sb.WriteString("\n\n")

	if m.showHelp {
		sb.WriteString(m.renderHelp())
		return sb.String()
	}

	sb.WriteString(m.renderList())
	if m.shown != nil {
		sb.WriteString("\n")
		sb.WriteString(m.renderDetail(m.shown))
		sb.WriteString("\n")
	}
	if m.filterOn {
		sb.WriteString("\n/" + m.filterInput.View() + "\n")
	}
	if m.confirmClear {
		sb.WriteString("\n" + m.th.bad.Render("Remove ALL downloaded layers? (y/N)") + "\n")
	}
	sb.WriteString(m.renderFooter())
	return sb.String()
}

func (m *Model) renderHeader() string {
	header := m.th.title.Render("docfetch • Documents")
	switch {
	case m.coord.Refreshing():
		header += " " + m.spin.View() + m.th.label.Render(" refreshing")
	case m.refreshErr != nil:
		header += m.th.bad.Render(" • refresh failed")
	case !m.coord.LastRefresh().IsZero():
		header += m.th.label.Render(" • updated " + humanize.Time(m.coord.LastRefresh()))
	}
	if m.filter != "" {
		header += m.th.label.Render(fmt.Sprintf(" • Filter: %q", m.filter))
	}
	return header
}

func (m *Model) renderList() string {
	rows := m.visible()
	if len(rows) == 0 {
		if m.filter != "" {
			return m.th.label.Render("No documents match the filter.") + "\n"
		}
		return m.th.label.Render("No documents. Upload one to the backend, then press r to refresh.") + "\n"
	}

	var sb strings.Builder
	lastSection := ""
	for i, it := range rows {
		if i == 0 || it.section != lastSection {
			if i > 0 {
				sb.WriteString("\n")
			}
			sb.WriteString(m.th.section.Render(it.section) + "\n")
			lastSection = it.section
		}
		style := m.th.row
		cursor := "  "
		if i == m.selected {
			style = m.th.rowSelected
			cursor = "▶ "
		}
		line := cursor + style.Render(it.row.Title())
		if !m.eng.IsDownloaded(it.row.Descriptor) {
			line += " ☁"
		}
		line += m.renderState(it.row.Descriptor)
		sb.WriteString(line + "\n")
	}
	return sb.String()
}

func (m *Model) renderState(d *engine.Descriptor) string {
	l := layerOf(d)
	switch {
	case m.coord.Authenticating(l):
		return m.th.busy.Render(" [authenticating]")
	case m.coord.Downloading(l):
		return m.th.busy.Render(" [downloading]")
	}
	return ""
}

func (m *Model) renderDetail(d *engine.Descriptor) string {
	var sb strings.Builder
	title := d.LayerName()
	if title == "" {
		title = "<Default Layer>"
	}
	sb.WriteString(m.th.title.Render(title) + "\n")
	sb.WriteString(m.th.label.Render("Document: ") + d.DocumentID() + "\n")
	status := m.th.label.Render("not downloaded")
	if m.eng.IsDownloaded(d) {
		status = m.th.ok.Render("downloaded")
	}
	sb.WriteString(m.th.label.Render("Status:   ") + status + m.renderState(d) + "\n")
	if s, ok := m.eng.(sizer); ok {
		if n, ok := s.StatSize(d); ok {
			sb.WriteString(m.th.label.Render("Size:     ") + humanize.Bytes(uint64(n)) + "\n")
		}
	}
	token := "none"
	if pos, ok := m.coord.Projection().FindRow(projection.ByDescriptor(d)); ok {
		if r, ok := m.coord.Projection().Row(pos); ok && r.HasToken {
			token = logging.RedactToken(r.Token)
		}
	}
	sb.WriteString(m.th.label.Render("Token:    ") + token)
	return m.th.border.Render(sb.String())
}

func (m *Model) renderFooter() string {
	var sb strings.Builder
	sb.WriteString("\n")
	if m.status != "" {
		sb.WriteString(m.th.label.Render(m.status) + "\n")
	}
	for _, line := range m.logs.Tail(3) {
		sb.WriteString(m.th.footer.Render(line) + "\n")
	}
	sb.WriteString(m.th.footer.Render("enter open/download • r refresh • D remove local copy • X clear all • / filter • ? help • q quit"))
	return sb.String()
}

func (m *Model) renderHelp() string {
	lines := []string{
		"j/k, ↑/↓   move",
		"enter      open the layer and start downloading it",
		"r          refresh the document list",
		"D          remove the local copy of the open or selected layer",
		"X          remove every downloaded layer (asks first)",
		"/          fuzzy filter by document or layer title",
		"esc        close help, detail, or filter",
		"q          quit",
	}
	return m.th.border.Render(strings.Join(lines, "\n"))
}
