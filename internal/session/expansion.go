package session

import (
	"context"

	"go.uber.org/zap"

	"graphlens/internal/graph"
	apperrors "graphlens/pkg/errors"
)

// Expand fetches the neighborhood of a node and merges it into the shared
// graph. A node is expanded at most once: repeat triggers for an expanded or
// in-flight node are ignored without issuing a fetch. The neighbor query is
// radius-limited and can miss edges between the new neighbors and nodes that
// were already visible, so a second fetch backfills all relationships among
// the resulting node set.
func (s *Session) Expand(ctx context.Context, nodeID string) error {
	if nodeID == "" {
		return apperrors.NewExpansionFetchFailed(nodeID, nil)
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	if _, done := s.expanded[nodeID]; done {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	// singleflight collapses concurrent triggers for the same node into one
	// fetch; the duplicate caller just waits for the shared result.
	_, err, _ := s.expandGroup.Do(nodeID, func() (interface{}, error) {
		return nil, s.expand(ctx, nodeID)
	})
	return err
}

func (s *Session) expand(ctx context.Context, nodeID string) error {
	s.mu.Lock()
	if _, done := s.expanded[nodeID]; done {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	s.notifyExpansion(nodeID, true)
	defer s.notifyExpansion(nodeID, false)

	fragment, err := s.reader.Neighborhood(ctx, nodeID, s.opts.ExpandDepth, s.opts.ExpandLimit)
	if err != nil {
		// The node stays unexpanded so the user can retry.
		s.logger.Warn("Expansion fetch failed",
			zap.String("node_id", nodeID),
			zap.Error(err),
		)
		return apperrors.NewExpansionFetchFailed(nodeID, err)
	}

	if fragment.IsEmpty() {
		// No further connections. Not an error; mark expanded so the node is
		// not refetched on the next trigger.
		s.markExpanded(nodeID)
		return nil
	}

	s.MergeFragment(fragment)

	s.mu.Lock()
	ids := s.graph.NodeIDList()
	s.mu.Unlock()

	rels, err := s.reader.RelationshipsAmong(ctx, ids)
	if err != nil {
		// Neighbors are already merged; missing cross edges are cosmetic.
		s.logger.Warn("Relationship backfill failed",
			zap.String("node_id", nodeID),
			zap.Error(err),
		)
	} else if len(rels) > 0 {
		s.MergeFragment(&graph.Graph{Relationships: rels})
	}

	s.markExpanded(nodeID)
	s.logger.Debug("Node expanded",
		zap.String("node_id", nodeID),
		zap.Int("nodes", len(fragment.Nodes)),
	)
	return nil
}

func (s *Session) markExpanded(nodeID string) {
	s.mu.Lock()
	if !s.closed {
		s.expanded[nodeID] = struct{}{}
	}
	s.mu.Unlock()
}
