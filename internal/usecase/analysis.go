package usecase

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/derma-check/internal/analysis"
	"github.com/example/derma-check/internal/imageprocessor"
	"github.com/example/derma-check/internal/logging"
	"github.com/example/derma-check/internal/metrics"
)

// Options tune the upstream call.
type Options struct {
	// Route is the prediction endpoint on the hosted model, e.g. "/predict".
	Route string
	// Space identifies the upstream in cache keys and logs.
	Space          string
	ConnectTimeout time.Duration
	PredictTimeout time.Duration
	APIInfoTTL     time.Duration
}

// AnalysisUseCase runs one image through the hosted model and normalizes the answer.
type AnalysisUseCase struct {
	client         imageprocessor.Client
	normalizer     *analysis.Normalizer
	cache          Cache
	metrics        *metrics.Registry
	logger         *zap.Logger
	opts           Options
	retryAttempts  int
	initialBackoff time.Duration
	maxBackoff     time.Duration
}

// NewAnalysisUseCase constructs a new use case instance. cache and registry may be nil.
func NewAnalysisUseCase(client imageprocessor.Client, normalizer *analysis.Normalizer, cache Cache, registry *metrics.Registry, logger *zap.Logger, opts Options) *AnalysisUseCase {
	return &AnalysisUseCase{
		client:         client,
		normalizer:     normalizer,
		cache:          cache,
		metrics:        registry,
		logger:         logger.Named("analysis_usecase"),
		opts:           opts,
		retryAttempts:  3,
		initialBackoff: 50 * time.Millisecond,
		maxBackoff:     time.Second,
	}
}

// AnalyzeImage returns a complete result or an *analysis.Error. Once the
// upstream answered, shape problems never surface as errors.
func (uc *AnalysisUseCase) AnalyzeImage(ctx context.Context, requestID string, image []byte) (*analysis.Result, error) {
	if requestID == "" {
		requestID = uuid.NewString()
	}
	opLogger := logging.WithOperation(uc.logger, "usecase.analyze_image", requestID)

	raw, err := uc.predict(ctx, requestID, image)
	if err != nil {
		classified := analysis.Classify(err)
		uc.metrics.ObserveFailure(classified.Kind)
		opLogger.Error("upstream analysis failed",
			zap.Error(err),
			zap.String("kind", string(classified.Kind)),
			zap.String("failed_operation", logging.OperationOf(err)),
		)
		return nil, classified
	}

	result, outcome := uc.normalizer.Normalize(raw)
	uc.metrics.ObserveOutcome(outcome)
	opLogger.Info("analysis complete",
		zap.String("outcome", string(outcome)),
		zap.String("risk_level", string(result.RiskLevel)),
		zap.Int("confidence", result.Confidence),
		zap.Int("image_bytes", len(image)),
	)
	return &result, nil
}

func (uc *AnalysisUseCase) predict(ctx context.Context, requestID string, image []byte) (json.RawMessage, error) {
	opLogger := logging.WithOperation(uc.logger, "usecase.predict", requestID)

	opLogger.Debug("connecting to hosted model", zap.String("space", uc.opts.Space))
	session, err := raceTimeout(ctx, uc.opts.ConnectTimeout, "connection", "",
		func(ctx context.Context) (imageprocessor.Session, error) {
			return uc.client.Connect(ctx)
		})
	if err != nil {
		return nil, logging.NewOperationError("usecase.connect", requestID, err)
	}

	uc.describeUpstream(ctx, requestID, session)

	dataURL := imageprocessor.EncodeDataURL(image)
	opLogger.Debug("submitting image", zap.String("route", uc.opts.Route), zap.String("mime", imageprocessor.SniffMIME(image)))
	raw, err := raceTimeout(ctx, uc.opts.PredictTimeout, "prediction", "the model may be loading",
		func(ctx context.Context) (json.RawMessage, error) {
			// Inputs are positional: img, base64_str.
			return session.Predict(ctx, uc.opts.Route, nil, dataURL)
		})
	if err != nil {
		return nil, logging.NewOperationError("usecase.predict", requestID, err)
	}
	opLogger.Debug("received model response", zap.Int("bytes", len(raw)))
	return raw, nil
}

// describeUpstream logs the model's declared interface. It is best-effort:
// every failure is logged and swallowed.
func (uc *AnalysisUseCase) describeUpstream(ctx context.Context, requestID string, session imageprocessor.Session) {
	opLogger := logging.WithOperation(uc.logger, "usecase.describe_upstream", requestID)
	key := "api_info:" + uc.opts.Space

	if uc.cache != nil {
		cached, err := uc.withCacheGet(ctx, requestID, "cache.get.api_info", key)
		if err == nil {
			opLogger.Debug("upstream api info (cached)", zap.String("api_info", cached))
			return
		}
		if !IsCacheMiss(err) {
			opLogger.Warn("failed to read api info cache", zap.Error(err))
		}
	}

	info, err := raceTimeout(ctx, uc.opts.ConnectTimeout, "introspection", "",
		func(ctx context.Context) (json.RawMessage, error) {
			return session.ViewAPI(ctx)
		})
	if err != nil {
		opLogger.Warn("could not retrieve upstream api info", zap.Error(err))
		return
	}
	opLogger.Info("upstream api info", zap.ByteString("api_info", info))

	if uc.cache == nil || uc.opts.APIInfoTTL <= 0 {
		return
	}
	if err := uc.withCacheRetry(ctx, requestID, "cache.set.api_info", func() error {
		return uc.cache.Set(ctx, key, string(info), uc.opts.APIInfoTTL)
	}); err != nil {
		opLogger.Warn("failed to cache api info", zap.Error(err))
	}
}
