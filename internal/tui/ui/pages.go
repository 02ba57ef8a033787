package ui

import "github.com/rivo/tview"

// Pages is a stack of named pages on top of tview.Pages. Every page is added
// once; the stack decides which one is shown.
type Pages struct {
	*tview.Pages
	stack    []string
	names    map[string]string
	onChange func(stack []string)
}

// NewPages creates an empty page stack.
func NewPages() *Pages {
	return &Pages{
		Pages: tview.NewPages(),
		names: make(map[string]string),
	}
}

// Register adds a component under id, hidden.
func (p *Pages) Register(id string, c Component) {
	p.names[id] = c.Name()
	p.AddPage(id, c, true, false)
}

// SetOnChange sets a callback that fires whenever the stack changes.
func (p *Pages) SetOnChange(fn func(stack []string)) {
	p.onChange = fn
}

// Push shows id on top of the stack. Pushing the current page is a no-op.
func (p *Pages) Push(id string) {
	if p.Current() == id {
		return
	}
	if len(p.stack) > 0 {
		p.HidePage(p.Current())
	}
	p.stack = append(p.stack, id)
	p.SwitchToPage(id)
	p.notify()
}

// Pop removes the top page and shows the one below. The last page is never
// popped; Pop then returns "".
func (p *Pages) Pop() string {
	if len(p.stack) < 2 {
		return ""
	}
	top := p.Current()
	p.HidePage(top)
	p.stack = p.stack[:len(p.stack)-1]
	p.SwitchToPage(p.Current())
	p.notify()
	return top
}

// Replace swaps the top page for id.
func (p *Pages) Replace(id string) {
	if len(p.stack) == 0 {
		p.Reset(id)
		return
	}
	p.HidePage(p.Current())
	p.stack[len(p.stack)-1] = id
	p.SwitchToPage(id)
	p.notify()
}

// Reset clears the stack down to id.
func (p *Pages) Reset(id string) {
	for _, n := range p.stack {
		p.HidePage(n)
	}
	p.stack = []string{id}
	p.SwitchToPage(id)
	p.notify()
}

// Current returns the id of the top page.
func (p *Pages) Current() string {
	if len(p.stack) == 0 {
		return ""
	}
	return p.stack[len(p.stack)-1]
}

// Depth returns the stack size.
func (p *Pages) Depth() int {
	return len(p.stack)
}

// Names returns the display names of the stacked pages, bottom first.
func (p *Pages) Names() []string {
	out := make([]string, len(p.stack))
	for i, id := range p.stack {
		out[i] = p.names[id]
	}
	return out
}

// Rename changes the display name of a registered page.
func (p *Pages) Rename(id, name string) {
	if _, ok := p.names[id]; !ok {
		return
	}
	p.names[id] = name
	p.notify()
}

func (p *Pages) notify() {
	if p.onChange != nil {
		p.onChange(p.Names())
	}
}
