package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fxcobra/salesbot/internal/model"
)

// PGResolver reads the catalog from the catalog_nodes table.
type PGResolver struct {
	db *pgxpool.Pool
}

// NewPGResolver creates a resolver backed by the given pool.
func NewPGResolver(db *pgxpool.Pool) *PGResolver {
	return &PGResolver{db: db}
}

const nodeColumns = `id, name, parent_id, price`

// ChildrenOf lists the direct children of parentID ordered by name. The
// empty string selects nodes with no parent.
func (r *PGResolver) ChildrenOf(ctx context.Context, parentID string) ([]model.CatalogNode, error) {
	var (
		rows pgx.Rows
		err  error
	)
	if parentID == "" {
		rows, err = r.db.Query(ctx,
			`SELECT `+nodeColumns+` FROM catalog_nodes WHERE parent_id IS NULL ORDER BY name`)
	} else {
		rows, err = r.db.Query(ctx,
			`SELECT `+nodeColumns+` FROM catalog_nodes WHERE parent_id = $1 ORDER BY name`, parentID)
	}
	if err != nil {
		return nil, fmt.Errorf("query catalog children: %w", err)
	}
	defer rows.Close()

	var nodes []model.CatalogNode
	for rows.Next() {
		n, err := scanNode(rows)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read catalog children: %w", err)
	}
	return nodes, nil
}

// ByID fetches one node. A missing id yields (nil, nil).
func (r *PGResolver) ByID(ctx context.Context, id string) (*model.CatalogNode, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+nodeColumns+` FROM catalog_nodes WHERE id = $1`, id)

	n, err := scanNode(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &n, nil
}

// ChildCount reports the number of direct children of a node.
func (r *PGResolver) ChildCount(ctx context.Context, id string) (int, error) {
	var count int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM catalog_nodes WHERE parent_id = $1`, id).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count catalog children: %w", err)
	}
	return count, nil
}

func scanNode(row pgx.Row) (model.CatalogNode, error) {
	var (
		n     model.CatalogNode
		price *float64
	)
	if err := row.Scan(&n.ID, &n.Name, &n.ParentID, &price); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.CatalogNode{}, err
		}
		return model.CatalogNode{}, fmt.Errorf("scan catalog node: %w", err)
	}
	if price != nil {
		n.Price = *price
	}
	return n, nil
}
