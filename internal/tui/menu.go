package tui

import (
	tea "github.com/charmbracelet/bubbletea"
)

/* ----------------------------------------
	MENU TREE
---------------------------------------- */

type MenuItem struct {
	Label   string
	Submenu *Menu
	Action  func(m *Model) tea.Cmd
}

type Menu struct {
	Title  string
	Items  []MenuItem
	Parent *Menu
}

/* ----------------------------------------
	MENU TREE DEFINITION
---------------------------------------- */

func linkParents(menu *Menu, parent *Menu) {
	menu.Parent = parent

	for i := range menu.Items {
		item := &menu.Items[i]

		if item.Label == "Back" {
			item.Submenu = parent
			continue
		}

		if item.Submenu != nil {
			linkParents(item.Submenu, menu)
		}
	}
}

func buildMenuTree(info Info) *Menu {

	/* Submenus */
	submenuInfo := &Menu{
		Title: "Info",
		Items: []MenuItem{
			{Label: "Analysis service: " + info.ServiceURL},
			{Label: "Accepted types: " + info.Accept},
			{Label: "Back"},
		},
	}

	/* Root Menu */
	root := &Menu{
		Title: "Main Menu",
		Items: []MenuItem{
			{Label: "Open manuscript", Action: (*Model).openPicker},
			{Label: "Info ->", Submenu: submenuInfo},
			{Label: "Quit", Action: (*Model).quit},
		},
	}

	linkParents(root, nil)

	return root
}

/* ----------------------------------------
	NAVIGATION
---------------------------------------- */

// selectItem runs the item under the cursor or descends into its submenu.
func (m *Model) selectItem() tea.Cmd {
	if m.cursor < 0 || m.cursor >= len(m.menu.Items) {
		return nil
	}
	item := m.menu.Items[m.cursor]

	switch {
	case item.Submenu != nil:
		m.menu = item.Submenu
		m.cursor = 0
		return nil
	case item.Action != nil:
		return item.Action(m)
	}
	return nil
}

func (m *Model) moveCursor(delta int) {
	n := len(m.menu.Items)
	if n == 0 {
		return
	}
	m.cursor = (m.cursor + delta + n) % n
}
