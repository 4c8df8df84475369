// Package control: конечный автомат интерактивного цикла и разбор меню паузы.
package control

import (
	"errors"
	"fmt"
	"strings"
	"sync"
)

type State int

const (
	SelectingSite State = iota
	Clipping
	Paused
	Reconnecting
	Terminated
)

func (s State) String() string {
	switch s {
	case SelectingSite:
		return "selecting_site"
	case Clipping:
		return "clipping"
	case Paused:
		return "paused"
	case Reconnecting:
		return "reconnecting"
	case Terminated:
		return "terminated"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

type Event int

const (
	SiteChosen Event = iota
	Interrupt
	CaptchaDetected
	SiteError
	SiteFinished
	ConnectionLost
	Continue
	ToggleRateLimit
	SkipSite
	ReturnToMenu
	Reconnect
	ReconnectSucceeded
	ReconnectFailed
	Quit
)

var eventNames = map[Event]string{
	SiteChosen:         "site_chosen",
	Interrupt:          "interrupt",
	CaptchaDetected:    "captcha_detected",
	SiteError:          "site_error",
	SiteFinished:       "site_finished",
	ConnectionLost:     "connection_lost",
	Continue:           "continue",
	ToggleRateLimit:    "toggle_rate_limit",
	SkipSite:           "skip_site",
	ReturnToMenu:       "return_to_menu",
	Reconnect:          "reconnect",
	ReconnectSucceeded: "reconnect_succeeded",
	ReconnectFailed:    "reconnect_failed",
	Quit:               "quit",
}

func (e Event) String() string {
	if name, ok := eventNames[e]; ok {
		return name
	}
	return fmt.Sprintf("event(%d)", int(e))
}

var ErrInvalidTransition = errors.New("invalid transition")

type transition struct {
	from State
	ev   Event
}

var transitions = map[transition]State{
	{SelectingSite, SiteChosen}:        Clipping,
	{Clipping, Interrupt}:              Paused,
	{Clipping, CaptchaDetected}:        Paused,
	{Clipping, SiteError}:              Paused,
	{Clipping, SiteFinished}:           SelectingSite,
	{Clipping, ConnectionLost}:         Reconnecting,
	{Paused, Continue}:                 Clipping,
	{Paused, ToggleRateLimit}:          Clipping,
	{Paused, SkipSite}:                 SelectingSite,
	{Paused, ReturnToMenu}:             SelectingSite,
	{Paused, Reconnect}:                Reconnecting,
	{Reconnecting, ReconnectSucceeded}: Clipping,
	{Reconnecting, ReconnectFailed}:    Paused,
}

// Machine хранит текущее состояние. Безопасен для конкурентного чтения State().
type Machine struct {
	mu    sync.Mutex
	state State
}

func NewMachine() *Machine {
	return &Machine{state: SelectingSite}
}

func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Fire применяет событие. Quit допустим из любого состояния.
// Недопустимое событие не меняет состояние.
func (m *Machine) Fire(ev Event) (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if ev == Quit {
		m.state = Terminated
		return m.state, nil
	}

	next, ok := transitions[transition{m.state, ev}]
	if !ok {
		return m.state, fmt.Errorf("%w: %s in state %s", ErrInvalidTransition, ev, m.state)
	}
	m.state = next
	return next, nil
}

// MenuOption: пункт меню паузы в порядке показа.
type MenuOption struct {
	Key   string
	Label string
	Event Event
}

var PauseMenu = []MenuOption{
	{"1", "Continue clipping", Continue},
	{"2", "Skip to next website", SkipSite},
	{"3", "Return to main menu", ReturnToMenu},
	{"4", "Exit program", Quit},
	{"5", "Toggle rate limit detection", ToggleRateLimit},
	{"6", "Reconnect to browser", Reconnect},
}

// ParseMenuChoice переводит ввод меню паузы в событие.
// Пустой или неизвестный ввод означает продолжение.
func ParseMenuChoice(input string) Event {
	input = strings.TrimSpace(input)
	for _, opt := range PauseMenu {
		if opt.Key == input {
			return opt.Event
		}
	}
	return Continue
}
