// Package console: ввод оператора и оформление вывода в терминале.
package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"
	"sync"
)

// ErrInterrupted возвращается, если во время ожидания ввода нажат Ctrl+C.
var ErrInterrupted = errors.New("input interrupted")

// Prompter читает строки из одной фоновой горутины,
// поэтому ожидание ввода можно прервать сигналом или отменой контекста.
type Prompter struct {
	in         io.Reader
	out        io.Writer
	interrupts <-chan struct{}

	start sync.Once
	lines chan string
	err   error
}

// NewPrompter. interrupts может быть nil.
func NewPrompter(in io.Reader, out io.Writer, interrupts <-chan struct{}) *Prompter {
	return &Prompter{
		in:         in,
		out:        out,
		interrupts: interrupts,
		lines:      make(chan string),
	}
}

func (p *Prompter) Out() io.Writer {
	return p.out
}

func (p *Prompter) Printf(format string, args ...any) {
	_, _ = fmt.Fprintf(p.out, format, args...)
}

func (p *Prompter) Println(args ...any) {
	_, _ = fmt.Fprintln(p.out, args...)
}

func (p *Prompter) readLoop() {
	scanner := bufio.NewScanner(p.in)
	for scanner.Scan() {
		p.lines <- scanner.Text()
	}
	p.err = scanner.Err()
	close(p.lines)
}

// ReadLine ждёт одну строку. На конце ввода возвращает io.EOF.
func (p *Prompter) ReadLine(ctx context.Context) (string, error) {
	p.start.Do(func() { go p.readLoop() })

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-p.interrupts:
		p.Println()
		return "", ErrInterrupted
	case line, ok := <-p.lines:
		if !ok {
			if p.err != nil {
				return "", fmt.Errorf("failed to read input: %w", p.err)
			}
			return "", io.EOF
		}
		return strings.TrimSpace(line), nil
	}
}

// Ask печатает приглашение и читает ответ.
func (p *Prompter) Ask(ctx context.Context, prompt string) (string, error) {
	p.Printf("%s", prompt)
	return p.ReadLine(ctx)
}

// Choose повторяет вопрос, пока ответ не попадёт в valid. Пустой ответ: def, если он задан.
func (p *Prompter) Choose(ctx context.Context, prompt string, valid []string, def string) (string, error) {
	for {
		answer, err := p.Ask(ctx, prompt)
		if err != nil {
			return "", err
		}
		if answer == "" && def != "" {
			return def, nil
		}
		if slices.Contains(valid, answer) {
			return answer, nil
		}
		p.Printf("Invalid choice. Please enter one of: %s\n", strings.Join(valid, ", "))
	}
}

// Confirm: вопрос да/нет.
func (p *Prompter) Confirm(ctx context.Context, prompt string, def bool) (bool, error) {
	answer, err := p.Ask(ctx, prompt)
	if err != nil {
		return false, err
	}
	switch strings.ToLower(answer) {
	case "y", "yes":
		return true, nil
	case "n", "no":
		return false, nil
	default:
		return def, nil
	}
}

// Float читает число. Пустой или некорректный ввод: def, значение меньше lo поднимается до lo.
func (p *Prompter) Float(ctx context.Context, prompt string, def, lo float64) (float64, error) {
	answer, err := p.Ask(ctx, prompt)
	if err != nil {
		return 0, err
	}
	if answer == "" {
		return def, nil
	}
	v, err := strconv.ParseFloat(answer, 64)
	if err != nil {
		p.Printf("Invalid number, using %.2f\n", def)
		return def, nil
	}
	if v < lo {
		p.Printf("Value too small, using %.2f\n", lo)
		return lo, nil
	}
	return v, nil
}

// WaitEnter ждёт нажатия Enter.
func (p *Prompter) WaitEnter(ctx context.Context, prompt string) error {
	_, err := p.Ask(ctx, prompt)
	return err
}
