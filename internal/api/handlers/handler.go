// handler.go — APIHandler собирает доменные обработчики в дерево
// маршрутов chi: публичные /api/v1/*, административные /api/v1/admin/*,
// health-пробы и раздачу загрузок.
package handlers

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/bigkaa/techdir/internal/config"
	"github.com/bigkaa/techdir/internal/domain/model"
	"github.com/bigkaa/techdir/internal/service"
	"github.com/bigkaa/techdir/internal/storage/docstore"
)

// Technicians — CRUD-обработчик коллекции техников.
type Technicians = CollectionHandler[model.TechnicianCreate, model.TechnicianPatch]

// Announcements — CRUD-обработчик коллекции объявлений.
type Announcements = CollectionHandler[model.AnnouncementCreate, model.AnnouncementPatch]

// CustomerService — CRUD-обработчик коллекции контактов поддержки.
type CustomerService = CollectionHandler[model.CustomerServiceCreate, model.CustomerServicePatch]

// APIHandler — единая точка регистрации маршрутов.
type APIHandler struct {
	Directory       *DirectoryHandler
	Technicians     *Technicians
	Announcements   *Announcements
	CustomerService *CustomerService
	Media           *MediaHandler
	Maintenance     *MaintenanceHandler
	System          *SystemHandler
	Health          *HealthHandler
	Uploads         *UploadsHandler
	Views           *ViewsHandler
	QRCodes         *QRCodeHandler

	// AdminMiddlewares — аутентификация административных маршрутов
	AdminMiddlewares []func(http.Handler) http.Handler
}

// Deps — зависимости для сборки APIHandler.
type Deps struct {
	Config     *config.Config
	Store      *docstore.Store
	Reconciler *service.Reconciler
	Uploads    *service.UploadService
	Stats      *service.StatsService
	Download   *service.DownloadService
	Views      *service.ViewsService
	QRCodes    *service.QRCodeService
	Pruner     ThumbnailPruner
	DiskUsage  DiskUsageFunc
	Logger     *slog.Logger

	AdminMiddlewares []func(http.Handler) http.Handler
}

// New собирает все обработчики. Удаление техника идёт через сверку:
// вместе с записью удаляется его папка медиа.
func New(d Deps) *APIHandler {
	technicians := NewCollectionHandler[model.TechnicianCreate, model.TechnicianPatch](
		d.Store, model.CollectionTechnicians, "Техник", d.Logger).
		WithFilter(adminTechnicianFilter).
		WithDelete(d.Reconciler.DeleteEntity)

	return &APIHandler{
		Directory:   NewDirectoryHandler(d.Store, d.Logger),
		Technicians: technicians,
		Announcements: NewCollectionHandler[model.AnnouncementCreate, model.AnnouncementPatch](
			d.Store, model.CollectionAnnouncements, "Объявление", d.Logger),
		CustomerService: NewCollectionHandler[model.CustomerServiceCreate, model.CustomerServicePatch](
			d.Store, model.CollectionCustomerService, "Контакт", d.Logger),
		Media:            NewMediaHandler(d.Reconciler, d.Uploads, d.Stats, d.Config.MaxFileSize, d.Logger),
		Maintenance:      NewMaintenanceHandler(d.Pruner, d.Store, d.Logger),
		System:           NewSystemHandler(d.Config, d.Store, d.Reconciler, d.DiskUsage, d.Logger),
		Health:           NewHealthHandler(d.Config.DataDir, d.Config.UploadsDir),
		Uploads:          NewUploadsHandler(d.Config.PublicPrefix, d.Download, d.Logger),
		Views:            NewViewsHandler(d.Views, d.Logger),
		QRCodes:          NewQRCodeHandler(d.QRCodes, d.Logger),
		AdminMiddlewares: d.AdminMiddlewares,
	}
}

// Routes регистрирует все маршруты на r.
func (h *APIHandler) Routes(r chi.Router) {
	h.Health.Routes(r)
	h.Uploads.Routes(r)

	r.Route("/api/v1", func(r chi.Router) {
		h.System.Routes(r)
		h.Directory.Routes(r)
		h.Views.Routes(r)

		r.Route("/admin", func(r chi.Router) {
			r.Use(h.AdminMiddlewares...)

			h.Media.Routes(r)
			h.Maintenance.Routes(r)
			h.Views.AdminRoutes(r)
			h.QRCodes.Routes(r)
			r.Route("/technicians", func(r chi.Router) {
				h.Media.TechnicianRoutes(r)
				h.Technicians.Routes(r)
			})
			r.Route("/announcements", h.Announcements.Routes)
			r.Route("/customer-service", h.CustomerService.Routes)
		})
	})
}
