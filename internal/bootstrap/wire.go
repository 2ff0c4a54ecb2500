package bootstrap

import (
	"go.uber.org/zap"

	"novadesk/internal/config"
	"novadesk/internal/logging"
	"novadesk/internal/ports"
	"novadesk/internal/providers/bookingapi"
	"novadesk/internal/providers/vapi"
	"novadesk/internal/usecase"
)

// Services is the assembled runtime graph.
type Services struct {
	Controller *usecase.VoiceController
	Calendar   *usecase.BookingFeed
	Admin      *usecase.AdminBookings
	Config     config.Config
	Logger     *zap.Logger
}

// Build wires all backend dependencies for the current runtime.
func Build(eventSink ports.EventSink) (Services, error) {
	cfg, err := config.Load()
	if err != nil {
		return Services{}, err
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return Services{}, err
	}

	voiceClient := vapi.NewClient(vapi.Config{
		PublicKey:     cfg.Voice.PublicKey,
		APIBaseURL:    cfg.Voice.APIBaseURL,
		AssistantRole: usecase.DefaultAssistantRole,
	}, logger)

	controller := usecase.NewVoiceController(
		voiceClient,
		eventSink,
		usecase.SystemClock(),
		logger,
		usecase.Config{
			PublicKey:         cfg.Voice.PublicKey,
			AssistantID:       cfg.Voice.AssistantID,
			HandshakeTimeout:  cfg.Voice.HandshakeTimeout,
			DedupeTranscripts: cfg.Voice.DedupeTranscripts,
			BookingToolName:   cfg.Voice.BookingToolName,
			AssistantRole:     usecase.DefaultAssistantRole,
			Messages:          usecase.Messages{ErrorSuffix: cfg.Voice.ErrorSuffix},
		},
	)

	bookings := bookingapi.NewClient(bookingapi.Config{
		APIBaseURL: cfg.Bookings.APIBaseURL,
		AdminKey:   cfg.Bookings.AdminKey,
		Timeout:    cfg.Bookings.HTTPTimeout,
	}, logger)

	logger.Info("services wired",
		zap.String("env_file", cfg.EnvFile),
		zap.Bool("voice_configured", cfg.Voice.PublicKey != "" && cfg.Voice.AssistantID != ""),
		zap.String("bookings_api", cfg.Bookings.APIBaseURL),
	)

	return Services{
		Controller: controller,
		Calendar:   usecase.NewBookingFeed(bookings, logger.Named("calendar"), usecase.FeedConfig{}),
		Admin: usecase.NewAdminBookings(
			usecase.NewAdminGate(cfg.Bookings.AdminPIN),
			usecase.NewBookingFeed(bookings, logger.Named("admin"), usecase.AdminFeedConfig(cfg.Bookings.PageSize, cfg.Bookings.Status)),
		),
		Config: cfg,
		Logger: logger,
	}, nil
}
