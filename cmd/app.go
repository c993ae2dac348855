package cmd

import (
	"os"

	"github.com/dcmarble/stonesite/internal/config"
	"github.com/dcmarble/stonesite/internal/contact"
	"github.com/dcmarble/stonesite/internal/emailjs"
	"github.com/dcmarble/stonesite/internal/gallery"
	"github.com/dcmarble/stonesite/internal/logging"
	"github.com/dcmarble/stonesite/internal/session"
	"github.com/dcmarble/stonesite/internal/site"
)

// app holds the components shared by serve and send.
type app struct {
	config  *config.Config
	logger  logging.Logger
	sender  contact.Sender
	content *site.Content
	catalog *gallery.Catalog
}

func newApp(cfg *config.Config) (*app, error) {
	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, err
	}
	logger := logging.NewLogger(&logging.LoggerConfig{
		Level:  level,
		Format: cfg.Log.Format,
		Output: os.Stderr,
	})

	content, err := site.Load(cfg.Site.ContentFile)
	if err != nil {
		return nil, err
	}

	catalog := gallery.NewCatalog(gallery.DefaultImages())
	if cfg.Gallery.Dir != "" {
		if catalog, err = gallery.NewDirCatalog(cfg.Gallery.Dir); err != nil {
			return nil, err
		}
	}

	opts := []emailjs.Option{
		emailjs.WithEndpoint(cfg.EmailJS.Endpoint),
		emailjs.WithTimeout(cfg.EmailJS.Timeout),
		emailjs.WithLogger(logger),
	}
	if cfg.EmailJS.PrivateKey != "" {
		opts = append(opts, emailjs.WithAccessToken(cfg.EmailJS.PrivateKey))
	}

	return &app{
		config:  cfg,
		logger:  logger,
		sender:  emailjs.NewClient(opts...),
		content: content,
		catalog: catalog,
	}, nil
}

// newController builds a contact controller wired to the EmailJS sender.
func (a *app) newController(opts ...contact.Option) *contact.Controller {
	opts = append([]contact.Option{contact.WithLogger(a.logger)}, opts...)
	return contact.NewController(a.sender, a.config.EmailJS.Credentials(), opts...)
}

func (a *app) newSessionStore() *session.Store {
	return session.NewStore(a.config.Session.TTL, func(observer contact.Observer) *contact.Controller {
		return a.newController(contact.WithObserver(observer))
	}, session.WithLogger(a.logger), session.WithMaxVisitors(a.config.Session.MaxVisitors))
}
