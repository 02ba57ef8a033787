package ui

import "github.com/rivo/tview"

// MenuHint describes a keyboard shortcut for display in the menu.
type MenuHint struct {
	Key         string
	Description string
	Numeric     bool // jump keys, drawn in their own color
}

// Component is a page of the application.
type Component interface {
	tview.Primitive
	// Name is the label shown in the breadcrumbs.
	Name() string
	// FocusTarget returns the widget that receives input when the page is shown.
	FocusTarget() tview.Primitive
}
