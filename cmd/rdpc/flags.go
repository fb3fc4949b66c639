package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/pflag"
)

// Desktop size limits the server accepts in the client core data.
const (
	minDesktopSize = 200
	maxDesktopSize = 8192
)

// sizeFlag is a pflag.Value for a desktop geometry written as WxH.
type sizeFlag struct {
	width  int
	height int
}

var _ pflag.Value = (*sizeFlag)(nil)

func (s *sizeFlag) String() string {
	if s.width == 0 && s.height == 0 {
		return ""
	}
	return fmt.Sprintf("%dx%d", s.width, s.height)
}

func (*sizeFlag) Type() string { return "WxH" }

func (s *sizeFlag) Set(val string) error {
	w, h, ok := strings.Cut(strings.ToLower(strings.TrimSpace(val)), "x")
	if !ok {
		return fmt.Errorf("invalid size %q (want WxH, e.g. 1024x768)", val)
	}
	width, err := strconv.Atoi(w)
	if err != nil {
		return fmt.Errorf("invalid width %q", w)
	}
	height, err := strconv.Atoi(h)
	if err != nil {
		return fmt.Errorf("invalid height %q", h)
	}
	next := sizeFlag{width: width, height: height}
	if err := next.validate(); err != nil {
		return err
	}
	*s = next
	return nil
}

func (s *sizeFlag) validate() error {
	if s.width < minDesktopSize || s.width > maxDesktopSize ||
		s.height < minDesktopSize || s.height > maxDesktopSize {
		return fmt.Errorf("size %dx%d out of range (%d-%d per side)",
			s.width, s.height, minDesktopSize, maxDesktopSize)
	}
	return nil
}
