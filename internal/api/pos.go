// ABOUTME: Product and order handlers for the point-of-sale surface
// ABOUTME: An order and its items commit atomically under one version

package api

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"github.com/tidemark/driftsync/internal/auth"
	"github.com/tidemark/driftsync/internal/store"
)

type product struct {
	ID    string  `json:"id"`
	Name  string  `json:"name"`
	Price float64 `json:"price"`
}

type order struct {
	UUID      string      `json:"uuid"`
	ShortID   string      `json:"short_id"`
	CardID    *string     `json:"card_id"`
	ProjectID *string     `json:"project_id"`
	Total     float64     `json:"total"`
	Items     []orderItem `json:"items,omitempty"`
}

type orderItem struct {
	ID        string `json:"id"`
	OrderID   string `json:"order_id"`
	ProductID string `json:"product_id"`
	Qty       int    `json:"qty"`
}

// --- Products ---

func (s *Server) handleCreateProduct(w http.ResponseWriter, r *http.Request) {
	tenantID := auth.TenantFromContext(r.Context())

	var req struct {
		Name  string  `json:"name"`
		Price float64 `json:"price"`
	}
	if err := decodeJSON(r, &req); err != nil || req.Name == "" {
		writeError(w, http.StatusBadRequest, "name required")
		return
	}

	p := product{ID: uuid.New().String(), Name: req.Name, Price: req.Price}
	_, err := s.engine.Write(r.Context(), tenantID, func(ctx context.Context, tx *sql.Tx) ([]store.Change, error) {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO products (id, name, price) VALUES (?, ?, ?)",
			p.ID, p.Name, p.Price); err != nil {
			return nil, fmt.Errorf("inserting product: %w", err)
		}
		return []store.Change{{TableName: "products", EntityID: p.ID, Operation: store.OpInsert, Payload: p}}, nil
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, p)
}

func (s *Server) handleListProducts(w http.ResponseWriter, r *http.Request) {
	tenantID := auth.TenantFromContext(r.Context())

	ts, err := s.engine.Stores().Open(tenantID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "store unavailable")
		return
	}

	rows, err := ts.DB().QueryContext(r.Context(),
		"SELECT id, name, price FROM products ORDER BY name")
	if err != nil {
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	defer rows.Close()

	products := []product{}
	for rows.Next() {
		var p product
		if err := rows.Scan(&p.ID, &p.Name, &p.Price); err != nil {
			writeError(w, http.StatusInternalServerError, "scan failed")
			return
		}
		products = append(products, p)
	}
	writeJSON(w, http.StatusOK, products)
}

// --- Orders ---

// handleCreateOrder inserts an order and its items in one transaction.
// Every row is journaled at the same version; one notification covers
// the whole batch. Orders against a rejected card are refused.
func (s *Server) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	tenantID := auth.TenantFromContext(r.Context())

	var req struct {
		CardID    *string `json:"card_id"`
		ProjectID *string `json:"project_id"`
		Items     []struct {
			ProductID string `json:"product_id"`
			Qty       int    `json:"qty"`
		} `json:"items"`
	}
	if err := decodeJSON(r, &req); err != nil || len(req.Items) == 0 {
		writeError(w, http.StatusBadRequest, "items required")
		return
	}

	o := order{UUID: uuid.New().String(), ShortID: shortID(), CardID: req.CardID, ProjectID: req.ProjectID}
	_, err := s.engine.Write(r.Context(), tenantID, func(ctx context.Context, tx *sql.Tx) ([]store.Change, error) {
		if req.CardID != nil && *req.CardID != "" {
			var status string
			err := tx.QueryRowContext(ctx,
				"SELECT approval_status FROM kanban_cards WHERE id = ?", *req.CardID).Scan(&status)
			if errors.Is(err, sql.ErrNoRows) {
				return nil, fmt.Errorf("card %s: %w", *req.CardID, store.ErrNotFound)
			}
			if err != nil {
				return nil, fmt.Errorf("reading card status: %w", err)
			}
			if status == "rejected" {
				return nil, fmt.Errorf("%w: card is rejected, sales are locked", errForbidden)
			}
		}

		for _, item := range req.Items {
			var price float64
			err := tx.QueryRowContext(ctx,
				"SELECT price FROM products WHERE id = ?", item.ProductID).Scan(&price)
			if errors.Is(err, sql.ErrNoRows) {
				return nil, fmt.Errorf("product %s: %w", item.ProductID, store.ErrNotFound)
			}
			if err != nil {
				return nil, fmt.Errorf("reading product price: %w", err)
			}
			o.Total += price * float64(item.Qty)
		}

		if _, err := tx.ExecContext(ctx,
			"INSERT INTO os_orders (uuid, short_id, card_id, project_id, total) VALUES (?, ?, ?, ?, ?)",
			o.UUID, o.ShortID, o.CardID, o.ProjectID, o.Total); err != nil {
			return nil, fmt.Errorf("inserting order: %w", err)
		}

		changes := []store.Change{{TableName: "os_orders", EntityID: o.UUID, Operation: store.OpInsert, Payload: &o}}
		for _, item := range req.Items {
			it := orderItem{ID: uuid.New().String(), OrderID: o.UUID, ProductID: item.ProductID, Qty: item.Qty}
			if _, err := tx.ExecContext(ctx,
				"INSERT INTO os_items (id, order_id, product_id, qty) VALUES (?, ?, ?, ?)",
				it.ID, it.OrderID, it.ProductID, it.Qty); err != nil {
				return nil, fmt.Errorf("inserting order item: %w", err)
			}
			o.Items = append(o.Items, it)
			changes = append(changes, store.Change{TableName: "os_items", EntityID: it.ID, Operation: store.OpInsert, Payload: it})
		}
		return changes, nil
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, o)
}

func (s *Server) handleListOrders(w http.ResponseWriter, r *http.Request) {
	tenantID := auth.TenantFromContext(r.Context())

	ts, err := s.engine.Stores().Open(tenantID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "store unavailable")
		return
	}

	query := "SELECT uuid, short_id, card_id, project_id, total FROM os_orders"
	var args []any
	if cardID := r.URL.Query().Get("card_id"); cardID != "" {
		query += " WHERE card_id = ?"
		args = append(args, cardID)
	}
	query += " ORDER BY created_at DESC"

	rows, err := ts.DB().QueryContext(r.Context(), query, args...)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	defer rows.Close()

	orders := []order{}
	for rows.Next() {
		var o order
		if err := rows.Scan(&o.UUID, &o.ShortID, &o.CardID, &o.ProjectID, &o.Total); err != nil {
			writeError(w, http.StatusInternalServerError, "scan failed")
			return
		}
		orders = append(orders, o)
	}
	writeJSON(w, http.StatusOK, orders)
}
