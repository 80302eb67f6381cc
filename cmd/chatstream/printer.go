package main

import (
	"fmt"
	"io"
	"sync"

	"github.com/fatih/color"
	"github.com/omochice/chatstream/internal/chat"
	"github.com/omochice/chatstream/internal/client"
	"github.com/omochice/chatstream/internal/session"
)

// printer renders session updates as they arrive. Streamed chunks are
// written inline so a reply grows on one line.
type printer struct {
	mu         sync.Mutex
	out        io.Writer
	inTurn     bool
	lastStatus client.Status
	seenStatus bool
}

func newPrinter(out io.Writer) *printer {
	return &printer{out: out}
}

func (p *printer) handle(u session.Update) {
	switch u.Kind {
	case session.UpdateTurnAdded:
		if u.Turn.Role != chat.RoleAssistant {
			return
		}
		p.mu.Lock()
		p.breakLocked()
		fmt.Fprint(p.out, color.CyanString("assistant> "), u.Chunk)
		p.inTurn = true
		p.mu.Unlock()
	case session.UpdateTurnAppended:
		p.mu.Lock()
		fmt.Fprint(p.out, u.Chunk)
		p.mu.Unlock()
	case session.UpdateStreamEnded:
		p.mu.Lock()
		p.breakLocked()
		p.mu.Unlock()
	case session.UpdateStatus:
		p.status(u.Status, false)
	}
}

// status prints the badge. Unless force is set it stays quiet while the
// badge is unchanged.
func (p *printer) status(snap client.Snapshot, force bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	st := snap.Status()
	if !force && p.seenStatus && st == p.lastStatus {
		return
	}
	p.lastStatus = st
	p.seenStatus = true

	p.breakLocked()
	line := fmt.Sprintf("[%s] %s", badge(st), snap.Address)
	if snap.LastError != "" {
		line += " " + color.RedString(snap.LastError)
	}
	fmt.Fprintln(p.out, line)
}

func (p *printer) linef(format string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.breakLocked()
	fmt.Fprintln(p.out, color.HiBlackString(format, args...))
}

func (p *printer) errorf(format string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.breakLocked()
	fmt.Fprintln(p.out, color.RedString(format, args...))
}

// breakLocked ends a streamed line that is still open.
func (p *printer) breakLocked() {
	if p.inTurn {
		fmt.Fprintln(p.out)
		p.inTurn = false
	}
}

func badge(st client.Status) string {
	switch st {
	case client.StatusConnected:
		return color.GreenString(st.String())
	case client.StatusError:
		return color.RedString(st.String())
	default:
		return color.YellowString(st.String())
	}
}
