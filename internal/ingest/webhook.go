package ingest

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"solana-copy-trader/internal/domain"
	"solana-copy-trader/internal/observability"
	"solana-copy-trader/internal/parser"
)

// webhookQueueCapacity bounds batches waiting for sequential processing.
const webhookQueueCapacity = 256

type webhookBatch struct {
	transactions []*parser.RawTransaction
	source       domain.SourceTag
}

// WebhookServer is the push producer: it accepts batched enriched
// transactions, acknowledges immediately, and processes the batch
// sequentially off the request goroutine.
type WebhookServer struct {
	intake  *Intake
	limiter *FixedWindowLimiter
	prom    *observability.Metrics
	log     *logrus.Entry

	server *http.Server
	queue  chan webhookBatch
	wg     sync.WaitGroup
}

// NewWebhookServer builds the gin server on addr.
func NewWebhookServer(addr string, intake *Intake, ratePerMin int, prom *observability.Metrics, log *logrus.Logger) *WebhookServer {
	s := &WebhookServer{
		intake:  intake,
		limiter: NewFixedWindowLimiter(ratePerMin),
		prom:    prom,
		log:     log.WithField("component", "webhook"),
		queue:   make(chan webhookBatch, webhookQueueCapacity),
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.POST("/webhook/:source", s.handle)
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	s.server = &http.Server{Addr: addr, Handler: router}
	return s
}

// Start runs the HTTP listener and the sequential batch worker.
func (s *WebhookServer) Start(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case batch := <-s.queue:
				for _, raw := range batch.transactions {
					s.intake.HandleRaw(ctx, raw, batch.source)
				}
			}
		}
	}()

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.WithError(err).Error("webhook server stopped")
		}
	}()
}

// Shutdown stops the listener and waits for the worker.
func (s *WebhookServer) Shutdown(ctx context.Context) error {
	err := s.server.Shutdown(ctx)
	s.wg.Wait()
	return err
}

// handle accepts an array or a single object and always answers 200; the
// provider retries on anything else, which would only duplicate load the
// ledger has to absorb.
func (s *WebhookServer) handle(c *gin.Context) {
	defer c.JSON(http.StatusOK, gin.H{"ok": true})

	if !s.limiter.Allow() {
		s.prom.WebhookRejected.Inc()
		s.log.Warn("webhook batch dropped by rate limiter")
		return
	}

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		s.log.WithError(err).Warn("read webhook body")
		return
	}

	transactions := decodeBatch(body)
	if len(transactions) == 0 {
		return
	}

	batch := webhookBatch{
		transactions: transactions,
		source:       sourceTagFromParam(c.Param("source")),
	}
	select {
	case s.queue <- batch:
	default:
		s.log.Warn("webhook queue full, batch dropped")
	}
}

// decodeBatch parses a JSON array of transactions, falling back to a single
// object.
func decodeBatch(body []byte) []*parser.RawTransaction {
	var batch []*parser.RawTransaction
	if err := json.Unmarshal(body, &batch); err == nil {
		return batch
	}

	var single parser.RawTransaction
	if err := json.Unmarshal(body, &single); err == nil && single.Signature != "" {
		return []*parser.RawTransaction{&single}
	}
	return nil
}

func sourceTagFromParam(param string) domain.SourceTag {
	if param == string(domain.SourceWebhookFallback) {
		return domain.SourceWebhookFallback
	}
	return domain.SourceWebhook
}
