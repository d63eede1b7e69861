package graph

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	"github.com/nidhogg/mnemo/internal/memory"
)

// Mirror projects memories and their associations into Neo4j so the
// link structure can be browsed and queried outside the process. It is
// strictly best-effort: the in-process collections never depend on it.
type Mirror struct {
	driver neo4j.DriverWithContext
	logger *zap.Logger
}

// New creates a Neo4j mirror.
func New(uri, user, password string, logger *zap.Logger) (*Mirror, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(user, password, ""))
	if err != nil {
		return nil, fmt.Errorf("create neo4j driver: %w", err)
	}
	return &Mirror{driver: driver, logger: logger}, nil
}

// Close shuts down the Neo4j driver.
func (m *Mirror) Close(ctx context.Context) error {
	return m.driver.Close(ctx)
}

// Ping verifies the Neo4j connection.
func (m *Mirror) Ping(ctx context.Context) error {
	return m.driver.VerifyConnectivity(ctx)
}

// SyncItem upserts the item node and an ASSOCIATED_WITH edge for each
// associated item reference.
func (m *Mirror) SyncItem(ctx context.Context, item *memory.MemoryItem) error {
	session := m.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	_, err := session.Run(ctx,
		`MERGE (n:Memory {id: $id})
		 SET n.content = $content, n.kind = $kind,
		     n.importance = $importance, n.decay_factor = $decay`,
		map[string]interface{}{
			"id":         item.ID,
			"content":    item.Content,
			"kind":       string(item.Kind),
			"importance": int(item.Importance),
			"decay":      item.DecayFactor,
		})
	if err != nil {
		return fmt.Errorf("sync memory node %s: %w", item.ID, err)
	}

	for _, assoc := range item.Associations {
		_, err := session.Run(ctx,
			`MATCH (a:Memory {id: $from})
			 MERGE (b:Memory {id: $to})
			 MERGE (a)-[:ASSOCIATED_WITH]->(b)`,
			map[string]interface{}{"from": item.ID, "to": assoc})
		if err != nil {
			return fmt.Errorf("sync association %s->%s: %w", item.ID, assoc, err)
		}
	}
	return nil
}

// SyncConcept upserts the concept node and a RELATED_TO edge for each
// named relationship, carrying the relationship type as an edge
// property.
func (m *Mirror) SyncConcept(ctx context.Context, concept *memory.SemanticMemory) error {
	session := m.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	_, err := session.Run(ctx,
		`MERGE (c:Concept {id: $id})
		 SET c.name = $name, c.definition = $definition,
		     c.confidence = $confidence, c.memory_id = $memoryId`,
		map[string]interface{}{
			"id":         concept.ConceptID,
			"name":       concept.ConceptName,
			"definition": concept.Definition,
			"confidence": concept.Confidence,
			"memoryId":   concept.MemoryID,
		})
	if err != nil {
		return fmt.Errorf("sync concept node %s: %w", concept.ConceptID, err)
	}

	for relType, targets := range concept.Relationships {
		for _, target := range targets {
			_, err := session.Run(ctx,
				`MATCH (a:Concept {id: $from})
				 MERGE (b:Concept {name: $to})
				 MERGE (a)-[r:RELATED_TO {type: $type}]->(b)`,
				map[string]interface{}{"from": concept.ConceptID, "to": target, "type": relType})
			if err != nil {
				return fmt.Errorf("sync relationship %s-[%s]->%s: %w", concept.ConceptID, relType, target, err)
			}
		}
	}
	return nil
}

// SyncAll mirrors a full snapshot, replacing the mirrored graph.
func (m *Mirror) SyncAll(ctx context.Context, snap *memory.Snapshot) error {
	session := m.driver.NewSession(ctx, neo4j.SessionConfig{})
	_, err := session.Run(ctx, `MATCH (n) WHERE n:Memory OR n:Concept DETACH DELETE n`, nil)
	session.Close(ctx)
	if err != nil {
		return fmt.Errorf("clear mirrored graph: %w", err)
	}

	for _, item := range snap.Items {
		if err := m.SyncItem(ctx, item); err != nil {
			return err
		}
	}
	for _, concept := range snap.Concepts {
		if err := m.SyncConcept(ctx, concept); err != nil {
			return err
		}
	}
	m.logger.Debug("graph mirror synced",
		zap.Int("items", len(snap.Items)),
		zap.Int("concepts", len(snap.Concepts)))
	return nil
}

// CountNodes returns the number of mirrored Memory nodes.
func (m *Mirror) CountNodes(ctx context.Context) (int64, error) {
	session := m.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	result, err := session.Run(ctx, `MATCH (n:Memory) RETURN count(n) AS c`, nil)
	if err != nil {
		return 0, fmt.Errorf("count memory nodes: %w", err)
	}
	record, err := result.Single(ctx)
	if err != nil {
		return 0, fmt.Errorf("read count: %w", err)
	}
	c, _ := record.Get("c")
	count, ok := c.(int64)
	if !ok {
		return 0, fmt.Errorf("unexpected count type %T", c)
	}
	return count, nil
}
