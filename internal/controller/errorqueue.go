package controller

import (
	"strconv"
	"strings"
	"time"

	"github.com/instrument-control/smuctl/internal/tsp"
)

// DrainErrorQueue pops every pending entry from the device error queue.
// With nothing queued it returns immediately after the count query, with no
// further traffic. Individual entries that come back blank or malformed are
// skipped rather than aborting the drain: operators are owed as many
// legitimate device faults as can be recovered. A failure reading the
// initial count is fatal for the call.
func (c *Controller) DrainErrorQueue() ([]ErrorEntry, error) {
	start := time.Now()
	entries, err := c.drainErrorQueue()
	c.logAudit("drainErrorQueue", err, start)
	return entries, err
}

func (c *Controller) drainErrorQueue() ([]ErrorEntry, error) {
	resp, err := c.query(tsp.QueryErrorCount)
	if err != nil {
		return nil, err
	}
	// Some firmware revisions print the count in exponential float form.
	countF, err := strconv.ParseFloat(strings.TrimSpace(resp), 64)
	if err != nil {
		return nil, &ProtocolError{Command: tsp.QueryErrorCount, Response: resp, Err: err}
	}
	count := int(countF)
	if count <= 0 {
		return nil, nil
	}

	entries := make([]ErrorEntry, 0, count)
	for i := 0; i < count; i++ {
		line, err := c.query(tsp.ErrorNextQuery)
		if err != nil {
			continue
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		entry, err := tsp.ParseErrorEntry(line)
		if err != nil {
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// ClearErrorQueue discards all pending error entries without reading them.
func (c *Controller) ClearErrorQueue() error {
	start := time.Now()
	err := c.write(tsp.ErrorQueueClear)
	c.logAudit("clearErrorQueue", err, start)
	return err
}
