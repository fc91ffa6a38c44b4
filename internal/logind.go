package internal

import (
	"fmt"

	"github.com/godbus/dbus/v5"
)

// SessionMonitor watches logind on the system bus. It reports external
// lock requests (loginctl lock-session) and suspend/resume transitions so
// the locker can refresh its frame when the machine wakes up.
type SessionMonitor struct {
	conn *dbus.Conn

	// LockRequested receives one value per external lock request.
	LockRequested chan struct{}

	// Resumed receives one value when the system comes back from sleep.
	Resumed chan struct{}

	signals chan *dbus.Signal
	done    chan struct{}
}

// NewSessionMonitor connects to the system bus and subscribes to the
// login1 Lock and PrepareForSleep signals.
func NewSessionMonitor() (*SessionMonitor, error) {
	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to system bus: %v", err)
	}

	if err := conn.AddMatchSignal(
		dbus.WithMatchInterface("org.freedesktop.login1.Session"),
		dbus.WithMatchMember("Lock"),
	); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to subscribe to session lock signal: %v", err)
	}

	if err := conn.AddMatchSignal(
		dbus.WithMatchInterface("org.freedesktop.login1.Manager"),
		dbus.WithMatchMember("PrepareForSleep"),
	); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to subscribe to sleep signal: %v", err)
	}

	m := &SessionMonitor{
		conn:          conn,
		LockRequested: make(chan struct{}, 1),
		Resumed:       make(chan struct{}, 1),
		signals:       make(chan *dbus.Signal, 8),
		done:          make(chan struct{}),
	}
	conn.Signal(m.signals)

	go m.watch()
	return m, nil
}

func (m *SessionMonitor) watch() {
	for {
		select {
		case <-m.done:
			return
		case sig, ok := <-m.signals:
			if !ok {
				return
			}
			switch sig.Name {
			case "org.freedesktop.login1.Session.Lock":
				Info("Received lock request from logind")
				select {
				case m.LockRequested <- struct{}{}:
				default:
				}
			case "org.freedesktop.login1.Manager.PrepareForSleep":
				sleeping, _ := sig.Body[0].(bool)
				Debug("PrepareForSleep: %v", sleeping)
				if !sleeping {
					select {
					case m.Resumed <- struct{}{}:
					default:
					}
				}
			}
		}
	}
}

// Close stops the monitor and releases the bus connection.
func (m *SessionMonitor) Close() {
	close(m.done)
	if m.conn != nil {
		m.conn.Close()
	}
}
