package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/rawblock/txrisk-engine/internal/engine"
	"github.com/rawblock/txrisk-engine/internal/review"
	"github.com/rawblock/txrisk-engine/pkg/models"
)

// evaluateRequest is the wire form of a transaction. Amounts arrive as
// decimal rupee strings ("40000.50") and are converted to exact paise; a
// float64 amount field would corrupt paise totals on large values.
type evaluateRequest struct {
	TxnID              string          `json:"txnId" binding:"required"`
	ClientID           string          `json:"clientId" binding:"required"`
	TxnType            string          `json:"txnType" binding:"required"`
	Amount             decimal.Decimal `json:"amount" binding:"required"`
	Timestamp          int64           `json:"timestamp"`
	BeneficiaryIfsc    string          `json:"beneficiaryIfsc"`
	BeneficiaryAccount string          `json:"beneficiaryAccount"`
}

func (h *Handler) handleEvaluate(c *gin.Context) {
	var req evaluateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}

	txn := &models.Transaction{
		TxnID:              req.TxnID,
		ClientID:           req.ClientID,
		TxnType:            req.TxnType,
		AmountPaise:        req.Amount.Mul(decimal.NewFromInt(100)).IntPart(),
		Timestamp:          req.Timestamp,
		BeneficiaryIfsc:    req.BeneficiaryIfsc,
		BeneficiaryAccount: req.BeneficiaryAccount,
	}

	res, err := h.engine.Evaluate(c.Request.Context(), txn)
	if err != nil {
		var ve *engine.ValidationError
		switch {
		case errors.As(err, &ve):
			c.JSON(http.StatusBadRequest, gin.H{"error": ve.Error()})
		case errors.Is(err, engine.ErrEvaluationTimeout):
			c.JSON(http.StatusGatewayTimeout, gin.H{"error": "evaluation timed out"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "evaluation failed"})
		}
		return
	}

	if h.wsHub != nil && res.Action != models.ActionPass {
		h.wsHub.BroadcastJSON(gin.H{"type": "verdict", "result": res})
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) handleGetResult(c *gin.Context) {
	res, err := h.engine.Result(c.Request.Context(), c.Param("txnId"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "result lookup failed"})
		return
	}
	if res == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no result for transaction"})
		return
	}
	c.JSON(http.StatusOK, res)
}

// ─── Review queue ────────────────────────────────────────────────────

func (h *Handler) handleReviewList(c *gin.Context) {
	f := review.Filter{
		Action:   c.Query("action"),
		ClientID: c.Query("clientId"),
		RuleID:   c.Query("ruleId"),
		Status:   c.Query("status"),
		FromDate: queryInt64(c, "fromDate"),
		ToDate:   queryInt64(c, "toDate"),
		Before:   queryInt64(c, "before"),
	}
	f.Limit, _ = strconv.Atoi(c.DefaultQuery("limit", "50"))

	items, err := h.queue.Find(c.Request.Context(), f)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "review query failed"})
		return
	}
	var next int64
	if len(items) > 0 {
		next = items[len(items)-1].EnqueuedAt
	}
	c.JSON(http.StatusOK, gin.H{"items": items, "count": len(items), "nextBefore": next})
}

func (h *Handler) handleReviewCounts(c *gin.Context) {
	counts, err := h.queue.CountByStatus(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "review count failed"})
		return
	}
	c.JSON(http.StatusOK, counts)
}

type feedbackRequest struct {
	Status     string `json:"status" binding:"required"` // TRUE_POSITIVE / FALSE_POSITIVE
	ReviewedBy string `json:"reviewedBy" binding:"required"`
}

func (h *Handler) handleReviewFeedback(c *gin.Context) {
	var req feedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	ok, err := h.queue.UpdateFeedback(c.Request.Context(), c.Param("txnId"), req.Status, req.ReviewedBy)
	if err != nil {
		var fe *review.InvalidFeedbackError
		if errors.As(err, &fe) {
			c.JSON(http.StatusBadRequest, gin.H{"error": fe.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "feedback write failed"})
		return
	}
	if !ok {
		c.JSON(http.StatusConflict, gin.H{"error": "item missing or already reviewed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": true})
}

type bulkFeedbackRequest struct {
	TxnIDs     []string `json:"txnIds" binding:"required"`
	Status     string   `json:"status" binding:"required"`
	ReviewedBy string   `json:"reviewedBy" binding:"required"`
}

func (h *Handler) handleBulkFeedback(c *gin.Context) {
	var req bulkFeedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	n, err := h.queue.BulkUpdateFeedback(c.Request.Context(), req.TxnIDs, req.Status, req.ReviewedBy)
	if err != nil {
		var fe *review.InvalidFeedbackError
		if errors.As(err, &fe) {
			c.JSON(http.StatusBadRequest, gin.H{"error": fe.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "bulk feedback failed", "updated": n})
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": n, "requested": len(req.TxnIDs)})
}

// ─── Rules CRUD ──────────────────────────────────────────────────────

func (h *Handler) handleListRules(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"rules": h.rules.All()})
}

func (h *Handler) handleGetRule(c *gin.Context) {
	rule, ok := h.rules.Find(c.Param("ruleId"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no such rule"})
		return
	}
	c.JSON(http.StatusOK, rule)
}

func (h *Handler) handleSaveRule(c *gin.Context) {
	var rule models.AnomalyRule
	if err := c.ShouldBindJSON(&rule); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid rule body"})
		return
	}
	rule.RuleID = c.Param("ruleId")
	if err := h.rules.Save(c.Request.Context(), &rule); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, rule)
}

func (h *Handler) handleDeleteRule(c *gin.Context) {
	if _, ok := h.rules.Find(c.Param("ruleId")); !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no such rule"})
		return
	}
	if err := h.rules.Delete(c.Request.Context(), c.Param("ruleId")); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "rule delete failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

// ─── Models & health ─────────────────────────────────────────────────

func (h *Handler) handleTrainModel(c *gin.Context) {
	clientID := c.Param("clientId")
	model, err := h.forests.TrainClient(c.Request.Context(), clientID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"clientId":   clientID,
		"trees":      model.NumTrees,
		"samples":    model.SampleCount,
		"trainedAt":  model.TrainedAt,
		"modelReady": true,
	})
}

func (h *Handler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "operational",
		"engine":  "txrisk-engine",
		"rules":   len(h.rules.ActiveRules()),
		"clients": h.wsHub.ClientCount(),
	})
}

func queryInt64(c *gin.Context, name string) int64 {
	v, _ := strconv.ParseInt(c.Query(name), 10, 64)
	return v
}
