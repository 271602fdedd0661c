package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sync"

	"tinyex.com/internal/matching"
	"tinyex.com/internal/session"
	"tinyex.com/pkg/safe"
	"tinyex.com/pkg/xerr"
)

const prompt = "Action: "

// syncWriter lets the prompt and the trade printer share stdout.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Println(line string) {
	s.mu.Lock()
	fmt.Fprintln(s.w, line)
	s.mu.Unlock()
}

func (s *syncWriter) Print(text string) {
	s.mu.Lock()
	fmt.Fprint(s.w, text)
	s.mu.Unlock()
}

// printTrades prints every trade of the exchange, whoever traded.
func printTrades(ctx context.Context, out *syncWriter, trades <-chan matching.Trade) {
	safe.GoCtx(ctx, func(ctx context.Context) {
		for {
			select {
			case <-ctx.Done():
				return
			case t := <-trades:
				out.Println(t.String())
			}
		}
	})
}

// runREPL executes one action per input line until QUIT, end of input or
// ctx is done. Errors are reported and the loop goes on.
func runREPL(ctx context.Context, in io.Reader, out *syncWriter, s *session.Session) {
	lines := make(chan string)
	safe.Go(func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	})

	for {
		out.Print(prompt)
		var line string
		select {
		case <-ctx.Done():
			out.Println("")
			return
		case l, ok := <-lines:
			if !ok {
				out.Println("")
				return
			}
			line = l
		}

		res, err := s.Execute(ctx, line)
		if err != nil {
			out.Println(xerr.MsgOf(err))
			continue
		}
		for _, l := range res.Lines {
			out.Println(l)
		}
		if res.Quit {
			return
		}
	}
}
