package analytics

import (
	"context"
	"fmt"
	"sort"
	"time"

	"storepulse/internal/timeframe"
)

// pageHit is the slice of a page view needed to rebuild sessions.
type pageHit struct {
	VisitorID string
	Path      string
	Timestamp time.Time
}

// session is a run of one visitor's page views with no gap longer than the
// session timeout between consecutive views.
type session struct {
	VisitorID string
	Hits      []pageHit
}

// Duration is the time between the first and last page view.
func (s session) Duration() time.Duration {
	if len(s.Hits) < 2 {
		return 0
	}
	return s.Hits[len(s.Hits)-1].Timestamp.Sub(s.Hits[0].Timestamp)
}

// Bounced reports a single page session.
func (s session) Bounced() bool {
	return len(s.Hits) == 1
}

// eachPageHit streams human page views in the window, ordered by visitor and
// time, without holding the window in memory.
func (s *Service) eachPageHit(ctx context.Context, w timeframe.Window, fn func(pageHit)) error {
	query := s.pageViews(ctx, w).
		Select("visitor_id, path, timestamp").
		Order("visitor_id ASC").
		Order("timestamp ASC").
		Order("id ASC")

	rows, err := query.Rows()
	if err != nil {
		return fmt.Errorf("error fetching page views: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var hit pageHit
		if err := s.db.ScanRows(rows, &hit); err != nil {
			return fmt.Errorf("error scanning page view: %w", err)
		}
		fn(hit)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error fetching page views: %w", err)
	}
	return nil
}

// eachSession streams the window's sessions. Only the session being built is
// kept in memory.
func (s *Service) eachSession(ctx context.Context, w timeframe.Window, fn func(session)) error {
	splitter := sessionSplitter{gap: s.opts.SessionGap, emit: fn}
	if err := s.eachPageHit(ctx, w, splitter.push); err != nil {
		return err
	}
	splitter.flush()
	return nil
}

// sessionSplitter cuts a stream of hits ordered by visitor and time into sessions.
type sessionSplitter struct {
	gap     time.Duration
	emit    func(session)
	current session
}

func (sp *sessionSplitter) push(hit pageHit) {
	if n := len(sp.current.Hits); n > 0 {
		last := sp.current.Hits[n-1]
		if hit.VisitorID != sp.current.VisitorID || hit.Timestamp.Sub(last.Timestamp) > sp.gap {
			sp.flush()
		}
	}
	if len(sp.current.Hits) == 0 {
		sp.current.VisitorID = hit.VisitorID
	}
	sp.current.Hits = append(sp.current.Hits, hit)
}

func (sp *sessionSplitter) flush() {
	if len(sp.current.Hits) == 0 {
		return
	}
	sp.emit(sp.current)
	sp.current = session{}
}

// buildSessions splits page views into sessions. Hits need not be sorted.
func buildSessions(hits []pageHit, gap time.Duration) []session {
	if len(hits) == 0 {
		return nil
	}

	sorted := make([]pageHit, len(hits))
	copy(sorted, hits)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].VisitorID != sorted[j].VisitorID {
			return sorted[i].VisitorID < sorted[j].VisitorID
		}
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	var sessions []session
	splitter := sessionSplitter{gap: gap, emit: func(sess session) {
		sessions = append(sessions, sess)
	}}
	for _, hit := range sorted {
		splitter.push(hit)
	}
	splitter.flush()
	return sessions
}

// sessionStats summarises a set of sessions.
type sessionStats struct {
	Sessions           int64
	AvgDuration        float64 // seconds
	AvgPagesPerSession float64
	BounceRate         float64 // percent
}

// sessionSummary accumulates sessionStats one session at a time.
type sessionSummary struct {
	sessions      int64
	totalDuration time.Duration
	totalPages    int64
	bounces       int64
}

func (sum *sessionSummary) add(sess session) {
	sum.sessions++
	sum.totalDuration += sess.Duration()
	sum.totalPages += int64(len(sess.Hits))
	if sess.Bounced() {
		sum.bounces++
	}
}

func (sum *sessionSummary) stats() sessionStats {
	if sum.sessions == 0 {
		return sessionStats{}
	}
	n := float64(sum.sessions)
	return sessionStats{
		Sessions:           sum.sessions,
		AvgDuration:        round2(sum.totalDuration.Seconds() / n),
		AvgPagesPerSession: round2(float64(sum.totalPages) / n),
		BounceRate:         round2(float64(sum.bounces) / n * 100),
	}
}

func summarizeSessions(sessions []session) sessionStats {
	var sum sessionSummary
	for _, sess := range sessions {
		sum.add(sess)
	}
	return sum.stats()
}
