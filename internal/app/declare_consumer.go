package app

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/luckypool/pool-service/internal/domain"
	"github.com/sirupsen/logrus"
)

// ResultDeclarer is the part of Service the declaration consumer drives.
type ResultDeclarer interface {
	DeclareResult(ctx context.Context, poolID int64) (*domain.Declaration, error)
}

// DeclareRequestConsumer settles pools named by queued declaration requests.
type DeclareRequestConsumer struct {
	declarer ResultDeclarer
	logger   logrus.FieldLogger
	timeout  time.Duration
}

func NewDeclareRequestConsumer(declarer ResultDeclarer, logger logrus.FieldLogger) *DeclareRequestConsumer {
	return &DeclareRequestConsumer{
		declarer: declarer,
		logger:   logger.WithField("component", "declare_consumer"),
		timeout:  15 * time.Second,
	}
}

// HandleMessage returns false only for transient failures so the broker re-delivers.
// Settlement is idempotent, so a re-delivered request for a settled pool is skipped.
func (c *DeclareRequestConsumer) HandleMessage(body []byte) bool {
	var req domain.DeclareRequest
	if err := json.Unmarshal(body, &req); err != nil {
		c.logger.WithError(err).Warn("failed to unmarshal declare request; dropping")
		return true
	}
	if req.PoolID <= 0 {
		c.logger.WithField("pool_id", req.PoolID).Warn("declare request without a valid pool id; dropping")
		return true
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	log := c.logger.WithField("pool_id", req.PoolID)
	declaration, err := c.declarer.DeclareResult(ctx, req.PoolID)
	if err != nil {
		if errors.Is(err, domain.ErrTransientStore) {
			log.WithError(err).Warn("declaration hit a transient error; re-queuing")
			return false
		}
		log.WithError(err).Error("declaration failed; dropping request")
		return true
	}

	if declaration.Skipped {
		log.WithField("reason", declaration.Reason).Info("declare request skipped")
	} else {
		log.WithField("result_id", declaration.ResultID).Info("declare request settled")
	}
	return true
}
