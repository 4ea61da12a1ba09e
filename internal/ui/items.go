package ui

import (
	"fmt"
	"time"

	"github.com/Makepad-fr/agenda/internal/model"
)

const maxNameWidth = 80

// Header is the title line with live done/pending/total counts.
func Header(title string, done, pending int) string {
	return fmt.Sprintf("%s   %s %d  %s %d  %s %d",
		current.Title.Render(title),
		current.Success.Render(current.SymDone), done,
		current.Pending.Render(current.SymPending), pending,
		current.Accent.Render("Total"), done+pending,
	)
}

// Badge is the short kind marker shown before an item.
func Badge(k model.Kind) string {
	if k == model.KindEvent {
		return current.Accent.Render(current.EventBadge)
	}
	return current.Muted.Render(current.TaskBadge)
}

// Checkbox renders the completion box of an item.
func Checkbox(done bool) string {
	if done {
		return current.Success.Render(current.BoxChecked)
	}
	return current.Muted.Render(current.BoxUnchecked)
}

// ItemRow is a single line: id, kind badge, checkbox, name.
func ItemRow(it model.Item) string {
	name := truncate(it.Name, maxNameWidth)
	if it.Completed {
		name = current.Done.Render(name)
	}
	return fmt.Sprintf("%s %s %s %s",
		current.Muted.Render(fmt.Sprintf("%3d", it.ID)),
		Badge(it.Kind), Checkbox(it.Completed), name)
}

func FlatLines(items []model.Item) []string {
	if len(items) == 0 {
		return []string{current.Muted.Render("no items")}
	}
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, ItemRow(it))
	}
	return out
}

// GroupLines lists pending items first, then completed ones.
func GroupLines(items []model.Item) []string {
	var pend, done []model.Item
	for _, it := range items {
		if it.Completed {
			done = append(done, it)
		} else {
			pend = append(pend, it)
		}
	}
	var lines []string
	for i, g := range []struct {
		title string
		items []model.Item
	}{{"Pending", pend}, {"Completed", done}} {
		if i > 0 {
			lines = append(lines, "")
		}
		lines = append(lines, current.Accent.Render(g.title))
		if len(g.items) == 0 {
			lines = append(lines, current.Muted.Render("(none)"))
			continue
		}
		lines = append(lines, FlatLines(g.items)...)
	}
	return lines
}

// DayHeading titles one day of the by-day listing. The zero time
// heads the undated items.
func DayHeading(day time.Time) string {
	if day.IsZero() {
		return current.Accent.Render("No date")
	}
	return current.Accent.Render(day.Format("Mon 02 Jan 2006"))
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
