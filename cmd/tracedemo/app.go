// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/jaegerlite/tracing"
	"github.com/jaegerlite/tracing/middleware"
	"github.com/jaegerlite/tracing/middleware/gintrace"
	"github.com/jaegerlite/tracing/middleware/redistrace"
)

const orderQuery = "SELECT * FROM orders WHERE id = ?"

type order struct {
	ID        int    `json:"id"`
	Status    string `json:"status"`
	Cached    bool   `json:"cached"`
	Inventory string `json:"inventory,omitempty"`
}

// app holds the dependencies of the order handlers. A nil rdb or empty
// upstream skips that step.
type app struct {
	upstream string
	rdb      *redis.Client

	client  *http.Client
	queries *middleware.QueryObserver
}

func newEngine(t *tracing.Tracer, a *app) *gin.Engine {
	a.client = &http.Client{
		Transport: middleware.NewRoundTripper(t, nil, "inventory"),
		Timeout:   5 * time.Second,
	}
	a.queries = middleware.NewQueryObserver(t)
	if a.rdb != nil {
		redistrace.Instrument(t, a.rdb, "cache")
	}

	e := gin.New()
	e.Use(gin.Recovery(), gintrace.Middleware(t))
	e.GET("/orders/:id", a.getOrder)
	return e
}

func (a *app) getOrder(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid order id"})
		return
	}
	ctx := c.Request.Context()

	o := order{ID: id}
	if a.rdb != nil {
		status, err := a.rdb.Get(ctx, "order:"+c.Param("id")).Result()
		if err == nil {
			o.Status, o.Cached = status, true
		} else if !errors.Is(err, redis.Nil) {
			_ = c.Error(err)
		}
	}
	if !o.Cached {
		o.Status = a.loadStatus(ctx, id)
	}

	if a.upstream != "" {
		inv, err := a.inventory(ctx, id)
		if err != nil {
			_ = c.Error(err)
			c.JSON(http.StatusBadGateway, gin.H{"error": "inventory unavailable"})
			return
		}
		o.Inventory = inv
	}
	c.JSON(http.StatusOK, o)
}

// loadStatus stands in for a database lookup and records it as a query.
func (a *app) loadStatus(ctx context.Context, id int) string {
	start := time.Now()
	status := "pending"
	if id%2 == 0 {
		status = "shipped"
	}
	a.queries.ObserveQuery(ctx, middleware.QueryEvent{
		Connection: "orders-db",
		SQL:        orderQuery,
		Bindings:   []any{id},
		Duration:   time.Since(start),
	})
	return status
}

func (a *app) inventory(ctx context.Context, id int) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/items/%d", a.upstream, id), nil)
	if err != nil {
		return "", err
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("inventory: %s", resp.Status)
	}
	return string(body), nil
}
