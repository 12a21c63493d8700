//go:build windows

package tools

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// NewAutomator returns the Windows automator, backed by PowerShell with
// user32 interop for the mouse and SendKeys for the keyboard.
func NewAutomator() Automator {
	return &windowsAutomator{}
}

type windowsAutomator struct{}

func (a *windowsAutomator) powershell(ctx context.Context, script string) (string, error) {
	out, err := exec.CommandContext(ctx, "powershell", "-NoProfile", "-Command", script).CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("powershell failed: %v: %s", err, strings.TrimSpace(string(out)))
	}
	return strings.TrimSpace(string(out)), nil
}

const mouseInterop = `
Add-Type -TypeDefinition @"
using System;
using System.Runtime.InteropServices;
public class Mouse {
    [DllImport("user32.dll")]
    public static extern bool SetCursorPos(int x, int y);
    [DllImport("user32.dll")]
    public static extern void mouse_event(uint flags, uint dx, uint dy, uint data, int extra);
}
"@
`

func (a *windowsAutomator) Click(ctx context.Context, x, y int) error {
	script := fmt.Sprintf(`%s
[Mouse]::SetCursorPos(%d, %d)
[Mouse]::mouse_event(0x0002, 0, 0, 0, 0)
[Mouse]::mouse_event(0x0004, 0, 0, 0, 0)`, mouseInterop, x, y)
	_, err := a.powershell(ctx, script)
	return err
}

func (a *windowsAutomator) MouseMove(ctx context.Context, x, y int) error {
	script := fmt.Sprintf(`%s
[Mouse]::SetCursorPos(%d, %d)`, mouseInterop, x, y)
	_, err := a.powershell(ctx, script)
	return err
}

func (a *windowsAutomator) TypeText(ctx context.Context, text string) error {
	script := fmt.Sprintf(`Add-Type -AssemblyName System.Windows.Forms
[System.Windows.Forms.SendKeys]::SendWait("%s")`, escapeSendKeys(text))
	_, err := a.powershell(ctx, script)
	return err
}

func (a *windowsAutomator) KeyPress(ctx context.Context, keys string) error {
	script := fmt.Sprintf(`Add-Type -AssemblyName System.Windows.Forms
[System.Windows.Forms.SendKeys]::SendWait("%s")`, toSendKeys(keys))
	_, err := a.powershell(ctx, script)
	return err
}

// escapeSendKeys escapes SendKeys metacharacters in literal text.
func escapeSendKeys(text string) string {
	var sb strings.Builder
	for _, r := range text {
		switch r {
		case '+', '^', '%', '~', '(', ')', '{', '}', '[', ']':
			sb.WriteString("{" + string(r) + "}")
		case '"':
			sb.WriteString("`\"")
		default:
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

// toSendKeys converts "ctrl+shift+s" style chords to SendKeys syntax.
func toSendKeys(keys string) string {
	parts := strings.Split(strings.ToLower(keys), "+")
	var sb strings.Builder
	key := parts[len(parts)-1]
	for _, mod := range parts[:len(parts)-1] {
		switch mod {
		case "ctrl", "control":
			sb.WriteString("^")
		case "alt":
			sb.WriteString("%")
		case "shift":
			sb.WriteString("+")
		}
	}
	named := map[string]string{
		"enter": "{ENTER}", "return": "{ENTER}", "tab": "{TAB}", "escape": "{ESC}",
		"esc": "{ESC}", "space": " ", "backspace": "{BACKSPACE}", "delete": "{DELETE}",
		"up": "{UP}", "down": "{DOWN}", "left": "{LEFT}", "right": "{RIGHT}",
		"home": "{HOME}", "end": "{END}", "pageup": "{PGUP}", "pagedown": "{PGDN}",
	}
	if s, ok := named[key]; ok {
		sb.WriteString(s)
	} else {
		sb.WriteString(key)
	}
	return sb.String()
}

func (a *windowsAutomator) Scroll(ctx context.Context, direction string, amount int) error {
	if amount <= 0 {
		amount = 3
	}
	delta := 120 * amount
	if direction == "down" {
		delta = -delta
	} else if direction != "up" {
		return fmt.Errorf("unknown scroll direction %q", direction)
	}
	script := fmt.Sprintf(`%s
[Mouse]::mouse_event(0x0800, 0, 0, %d, 0)`, mouseInterop, uint32(int32(delta)))
	_, err := a.powershell(ctx, script)
	return err
}

func (a *windowsAutomator) ListWindows(ctx context.Context) ([]Window, error) {
	script := `Get-Process | Where-Object { $_.MainWindowTitle -ne "" } | ForEach-Object { "$($_.Id)|$($_.MainWindowTitle)" }`
	out, err := a.powershell(ctx, script)
	if err != nil {
		return nil, err
	}
	var windows []Window
	for _, line := range strings.Split(out, "\n") {
		parts := strings.SplitN(strings.TrimSpace(line), "|", 2)
		if len(parts) != 2 {
			continue
		}
		windows = append(windows, Window{ID: parts[0], Title: parts[1]})
	}
	return windows, nil
}

func (a *windowsAutomator) FindWindow(ctx context.Context, title string) (*Window, error) {
	windows, err := a.ListWindows(ctx)
	if err != nil {
		return nil, err
	}
	needle := strings.ToLower(title)
	for i := range windows {
		if strings.Contains(strings.ToLower(windows[i].Title), needle) {
			return &windows[i], nil
		}
	}
	return nil, fmt.Errorf("no window matching %q", title)
}

const windowInterop = `
Add-Type -TypeDefinition @"
using System;
using System.Runtime.InteropServices;
public class Win {
    [DllImport("user32.dll")]
    public static extern bool SetForegroundWindow(IntPtr hWnd);
    [DllImport("user32.dll")]
    public static extern bool ShowWindow(IntPtr hWnd, int nCmdShow);
    [DllImport("user32.dll")]
    public static extern bool MoveWindow(IntPtr hWnd, int x, int y, int w, int h, bool repaint);
}
"@
`

func (a *windowsAutomator) withWindowHandle(ctx context.Context, title, body string) error {
	script := fmt.Sprintf(`%s
$p = Get-Process | Where-Object { $_.MainWindowTitle -like "*%s*" } | Select-Object -First 1
if (-not $p) { throw "no window matching %s" }
$h = $p.MainWindowHandle
%s`, windowInterop, title, title, body)
	_, err := a.powershell(ctx, script)
	return err
}

func (a *windowsAutomator) FocusWindow(ctx context.Context, title string) error {
	return a.withWindowHandle(ctx, title, `[Win]::ShowWindow($h, 9) | Out-Null
[Win]::SetForegroundWindow($h) | Out-Null`)
}

func (a *windowsAutomator) ResizeWindow(ctx context.Context, title string, width, height int) error {
	return a.withWindowHandle(ctx, title,
		fmt.Sprintf(`[Win]::MoveWindow($h, 0, 0, %d, %d, $true) | Out-Null`, width, height))
}

func (a *windowsAutomator) MinimizeWindow(ctx context.Context, title string) error {
	return a.withWindowHandle(ctx, title, `[Win]::ShowWindow($h, 6) | Out-Null`)
}

func (a *windowsAutomator) MaximizeWindow(ctx context.Context, title string) error {
	return a.withWindowHandle(ctx, title, `[Win]::ShowWindow($h, 3) | Out-Null`)
}

func (a *windowsAutomator) RestoreWindow(ctx context.Context, title string) error {
	return a.withWindowHandle(ctx, title, `[Win]::ShowWindow($h, 9) | Out-Null`)
}

func (a *windowsAutomator) WindowTree(ctx context.Context, title string) (string, error) {
	// UI Automation walk, one element per line in the shared tree format.
	script := fmt.Sprintf(`Add-Type -AssemblyName UIAutomationClient
Add-Type -AssemblyName UIAutomationTypes
$root = [System.Windows.Automation.AutomationElement]::RootElement
$cond = New-Object System.Windows.Automation.PropertyCondition([System.Windows.Automation.AutomationElement]::NameProperty, "%s")
$win = $root.FindFirst([System.Windows.Automation.TreeScope]::Children, $cond)
if (-not $win) {
  $all = $root.FindAll([System.Windows.Automation.TreeScope]::Children, [System.Windows.Automation.Condition]::TrueCondition)
  foreach ($w in $all) { if ($w.Current.Name -like "*%s*") { $win = $w; break } }
}
if (-not $win) { throw "no window matching %s" }
$els = $win.FindAll([System.Windows.Automation.TreeScope]::Descendants, [System.Windows.Automation.Condition]::TrueCondition)
foreach ($el in $els) {
  $c = $el.Current
  $r = $c.Rectangle
  $line = "[$($c.ControlType.ProgrammaticName -replace 'ControlType.','')]"
  if ($c.Name) { $line += " text=`"$($c.Name)`"" }
  $line += " bounds=[$([int]$r.Left),$([int]$r.Top)][$([int]$r.Right),$([int]$r.Bottom)]"
  if ($c.IsKeyboardFocusable) { $line += " clickable" }
  Write-Output $line
}`, title, title, title)
	return a.powershell(ctx, script)
}
