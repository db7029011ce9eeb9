package markdown

import "strings"

// frame is one entry of the active header chain.
type frame struct {
	depth   int
	text    string
	reverse bool
}

// headerChain is the path of headers from the top of the document down to the
// current position. It is a flat slice indexed by depth-1.
type headerChain struct {
	frames []frame
}

// enter applies a header boundary to the chain. A header at the current length
// replaces the last frame, a deeper one is pushed, and a shallower one drops
// everything from its depth down before being pushed.
func (c *headerChain) enter(f frame) {
	switch n := len(c.frames); {
	case f.depth == n:
		c.frames[n-1] = f
	case f.depth > n:
		c.frames = append(c.frames, f)
	default:
		c.frames = append(c.frames[:f.depth-1], f)
	}
}

func (c *headerChain) empty() bool {
	return len(c.frames) == 0
}

// front returns the joined chain text and whether the deepest frame is a
// reverse marker. The marker itself is left out of the text.
func (c *headerChain) front() (string, bool) {
	frames := c.frames
	reverse := false
	if n := len(frames); n > 0 && frames[n-1].reverse {
		frames = frames[:n-1]
		reverse = true
	}
	texts := make([]string, len(frames))
	for i, f := range frames {
		texts[i] = f.text
	}
	return strings.TrimSpace(strings.Join(texts, "\n")), reverse
}
