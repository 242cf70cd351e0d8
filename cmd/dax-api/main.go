package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/luxfi/dax/pkg/analytics"
	"github.com/luxfi/dax/pkg/auction"
	"github.com/luxfi/dax/pkg/ids"
	"github.com/luxfi/dax/pkg/ledger"
	daxlog "github.com/luxfi/dax/pkg/log"
	"github.com/luxfi/dax/pkg/registry"
)

var (
	port  = flag.String("port", "8081", "Console server port")
	env   = flag.String("env", "development", "Environment (development/production)")
	admin = flag.String("admin", "dax-console", "Operator account (hex ID or name)")
	seed  = flag.Bool("seed", true, "Seed demo accounts and a sample auction")
)

func main() {
	flag.Parse()

	gw, err := newGateway(parseAccount(*admin))
	if err != nil {
		log.Fatalf("Failed to build gateway: %v", err)
	}

	if *seed {
		if err := gw.seedDemo(); err != nil {
			log.Fatalf("Failed to seed demo data: %v", err)
		}
	}

	router := setupRouter(gw)

	srv := &http.Server{
		Addr:    ":" + *port,
		Handler: router,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	log.Printf("DAX console started on port %s", *port)
	log.Printf("Operator account: %s", gw.operator)
	log.Printf("Environment: %s", *env)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server exiting")
}

// gateway bundles an in-process auction stack for the operator console.
// All admin actions run under the configured operator account.
type gateway struct {
	operator ids.ID
	reg      *registry.Registry
	funds    *ledger.Ledger
	tracker  *analytics.Tracker
}

func newGateway(operator ids.ID) (*gateway, error) {
	gw := &gateway{
		operator: operator,
		funds:    ledger.New(daxlog.NoLog),
		tracker:  analytics.NewTracker(),
	}

	reg, err := registry.New(registry.Config{
		Owner:      operator,
		FeeAccount: ids.NewID([]byte("dax-fee-custody")),
	}, registry.Deps{
		Ledger:  gw.funds,
		Tracker: gw.tracker,
		Log:     daxlog.NoLog,
	})
	if err != nil {
		return nil, err
	}
	gw.reg = reg
	return gw, nil
}

// seedDemo funds a few named accounts and lists one live auction so the
// console has something to show.
func (g *gateway) seedDemo() error {
	ctx := context.Background()
	for _, name := range []string{"alice", "bob", "carol"} {
		if _, err := g.funds.Deposit(parseAccount(name), 10_000, "demo seed"); err != nil {
			return err
		}
	}

	a, err := g.reg.Create(ctx, registry.CreateParams{
		ItemName:     "demo lot: first pressing",
		Seller:       parseAccount("alice"),
		StartPrice:   1000,
		MinimumPrice: 350,
	})
	if err != nil {
		return err
	}
	if err := g.reg.Approve(ctx, g.operator, a.ID()); err != nil {
		return err
	}
	return g.reg.Activate(ctx, a.ID())
}

func setupRouter(gw *gateway) *gin.Engine {
	if *env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.Default()

	// CORS configuration for the dashboard frontends
	config := cors.DefaultConfig()
	config.AllowOrigins = []string{"http://localhost:3000", "http://localhost:3001"}
	config.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	config.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization"}
	router.Use(cors.New(config))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status": "healthy",
			"time":   time.Now().Unix(),
		})
	})

	api := router.Group("/api/v1")
	{
		api.POST("/auctions", gw.createAuction)
		api.GET("/auctions", gw.listAuctions)
		api.GET("/auctions/:id", gw.getAuction)
		api.GET("/auctions/:id/price", gw.getPrice)
		api.POST("/auctions/:id/approve", gw.approveAuction)
		api.POST("/auctions/:id/activate", gw.activateAuction)
		api.POST("/auctions/:id/purchase", gw.purchase)
		api.POST("/auctions/:id/expire", gw.expire)

		api.GET("/stats", gw.getStats)
		api.POST("/fees/withdraw", gw.withdrawFees)

		api.POST("/accounts/:name/deposit", gw.deposit)
		api.GET("/accounts/:name", gw.getAccount)
	}

	return router
}

// Auction handlers

func (g *gateway) createAuction(c *gin.Context) {
	var req struct {
		ItemName     string `json:"item_name" binding:"required"`
		Seller       string `json:"seller" binding:"required"`
		StartPrice   uint64 `json:"start_price" binding:"required"`
		MinimumPrice uint64 `json:"minimum_price" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(400, gin.H{"error": err.Error()})
		return
	}

	a, err := g.reg.Create(c.Request.Context(), registry.CreateParams{
		ItemName:     req.ItemName,
		Seller:       parseAccount(req.Seller),
		StartPrice:   req.StartPrice,
		MinimumPrice: req.MinimumPrice,
	})
	if err != nil {
		abortErr(c, err)
		return
	}
	c.JSON(201, a.Snapshot())
}

func (g *gateway) listAuctions(c *gin.Context) {
	all := g.reg.List()
	snaps := make([]auction.Snapshot, 0, len(all))
	for _, a := range all {
		snaps = append(snaps, a.Snapshot())
	}
	c.JSON(200, gin.H{
		"auctions": snaps,
		"total":    len(snaps),
	})
}

func (g *gateway) getAuction(c *gin.Context) {
	a, ok := g.lookup(c)
	if !ok {
		return
	}
	c.JSON(200, a.Snapshot())
}

func (g *gateway) getPrice(c *gin.Context) {
	a, ok := g.lookup(c)
	if !ok {
		return
	}
	snap := a.Snapshot()
	c.JSON(200, gin.H{
		"auction_id":    snap.Spec.ID,
		"status":        snap.Status,
		"current_price": snap.CurrentPrice,
		"start_price":   snap.Spec.StartPrice,
		"minimum_price": snap.Spec.MinimumPrice,
	})
}

func (g *gateway) approveAuction(c *gin.Context) {
	id, err := ids.FromString(c.Param("id"))
	if err != nil {
		c.JSON(400, gin.H{"error": "invalid auction id"})
		return
	}
	if err := g.reg.Approve(c.Request.Context(), g.operator, id); err != nil {
		abortErr(c, err)
		return
	}
	c.JSON(200, gin.H{"auction_id": id, "approved": true})
}

func (g *gateway) activateAuction(c *gin.Context) {
	id, err := ids.FromString(c.Param("id"))
	if err != nil {
		c.JSON(400, gin.H{"error": "invalid auction id"})
		return
	}
	if err := g.reg.Activate(c.Request.Context(), id); err != nil {
		abortErr(c, err)
		return
	}
	a, err := g.reg.Get(id)
	if err != nil {
		abortErr(c, err)
		return
	}
	c.JSON(200, a.Snapshot())
}

func (g *gateway) purchase(c *gin.Context) {
	id, err := ids.FromString(c.Param("id"))
	if err != nil {
		c.JSON(400, gin.H{"error": "invalid auction id"})
		return
	}
	var req struct {
		Payer   string `json:"payer" binding:"required"`
		Payment uint64 `json:"payment" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(400, gin.H{"error": err.Error()})
		return
	}

	receipt, err := g.reg.Purchase(c.Request.Context(), id, parseAccount(req.Payer), req.Payment)
	if err != nil {
		abortErr(c, err)
		return
	}
	c.JSON(200, receipt)
}

func (g *gateway) expire(c *gin.Context) {
	id, err := ids.FromString(c.Param("id"))
	if err != nil {
		c.JSON(400, gin.H{"error": "invalid auction id"})
		return
	}
	expired, err := g.reg.CheckExpiry(c.Request.Context(), id)
	if err != nil {
		abortErr(c, err)
		return
	}
	c.JSON(200, gin.H{"auction_id": id, "expired": expired})
}

// Platform handlers

func (g *gateway) getStats(c *gin.Context) {
	c.JSON(200, gin.H{
		"sales":        g.tracker.Snapshot(),
		"fees_accrued": g.reg.FeeBalance(),
	})
}

func (g *gateway) withdrawFees(c *gin.Context) {
	var req struct {
		To     string `json:"to" binding:"required"`
		Amount uint64 `json:"amount"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(400, gin.H{"error": err.Error()})
		return
	}

	entry, amount, err := g.reg.WithdrawFees(c.Request.Context(), g.operator, parseAccount(req.To), req.Amount)
	if err != nil {
		abortErr(c, err)
		return
	}
	c.JSON(200, gin.H{"entry": entry, "amount": amount})
}

// Account handlers

func (g *gateway) deposit(c *gin.Context) {
	account := parseAccount(c.Param("name"))
	var req struct {
		Amount uint64 `json:"amount" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(400, gin.H{"error": err.Error()})
		return
	}

	if _, err := g.funds.Deposit(account, req.Amount, "console deposit"); err != nil {
		abortErr(c, err)
		return
	}
	balance, err := g.funds.Balance(account)
	if err != nil {
		abortErr(c, err)
		return
	}
	c.JSON(200, gin.H{"account": account, "balance": balance})
}

func (g *gateway) getAccount(c *gin.Context) {
	account := parseAccount(c.Param("name"))
	balance, err := g.funds.Balance(account)
	if err != nil {
		abortErr(c, err)
		return
	}
	c.JSON(200, gin.H{"account": account, "balance": balance})
}

// lookup resolves the :id path param, writing the error response itself
// when the id is bad or unknown.
func (g *gateway) lookup(c *gin.Context) (*auction.Auction, bool) {
	id, err := ids.FromString(c.Param("id"))
	if err != nil {
		c.JSON(400, gin.H{"error": "invalid auction id"})
		return nil, false
	}
	a, err := g.reg.Get(id)
	if err != nil {
		abortErr(c, err)
		return nil, false
	}
	return a, true
}

func abortErr(c *gin.Context, err error) {
	c.JSON(httpStatus(err), gin.H{"error": err.Error()})
}

func httpStatus(err error) int {
	switch {
	case errors.Is(err, registry.ErrNotFound), errors.Is(err, ledger.ErrUnknownAccount):
		return http.StatusNotFound
	case errors.Is(err, registry.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, auction.ErrState):
		return http.StatusConflict
	case errors.Is(err, auction.ErrFunds), errors.Is(err, ledger.ErrInsufficientFunds):
		return http.StatusPaymentRequired
	case errors.Is(err, auction.ErrConfiguration),
		errors.Is(err, ledger.ErrZeroAmount),
		errors.Is(err, ledger.ErrZeroAccount):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// parseAccount accepts either a hex account ID or an arbitrary name that
// is hashed into one.
func parseAccount(s string) ids.ID {
	if id, err := ids.FromString(s); err == nil {
		return id
	}
	return ids.NewID([]byte(s))
}
