package services

import (
	"errors"
	"fmt"

	"trackline/models"

	"gorm.io/gorm"
)

// PackageService manages reusable song packages (named catalog filters).
type PackageService struct {
	db *gorm.DB
}

func NewPackageService(db *gorm.DB) *PackageService {
	return &PackageService{db: db}
}

type CreatePackageRequest struct {
	Name      string `json:"name" binding:"required"`
	Genre     string `json:"genre"`
	Country   string `json:"country"`
	Artist    string `json:"artist"`
	YearStart int    `json:"year_start"`
	YearEnd   int    `json:"year_end"`
	Limit     int    `json:"limit"`
}

func (s *PackageService) CreatePackage(userID uint, req *CreatePackageRequest) (*models.SongPackage, error) {
	// An artist filter is already maximally narrow; combining it with
	// genre or country would mostly produce empty pools.
	if req.Artist != "" && (req.Genre != "" || req.Country != "") {
		return nil, errors.New("artist filter cannot be combined with genre or country")
	}
	if (req.YearStart == 0) != (req.YearEnd == 0) {
		return nil, errors.New("year range requires both start and end")
	}
	if req.YearStart != 0 && req.YearStart > req.YearEnd {
		return nil, fmt.Errorf("invalid year range %d-%d", req.YearStart, req.YearEnd)
	}

	limit := req.Limit
	if limit <= 0 {
		limit = defaultCandidateLimit
	}

	pkg := models.SongPackage{
		UserID:    userID,
		Name:      req.Name,
		Genre:     req.Genre,
		Country:   req.Country,
		Artist:    req.Artist,
		YearStart: req.YearStart,
		YearEnd:   req.YearEnd,
		Limit:     limit,
	}
	if err := s.db.Create(&pkg).Error; err != nil {
		return nil, err
	}
	return &pkg, nil
}

// ListPackages returns every package; any session can select any package.
func (s *PackageService) ListPackages() ([]models.SongPackage, error) {
	var packages []models.SongPackage
	err := s.db.Order("created_at DESC").Find(&packages).Error
	return packages, err
}

func (s *PackageService) GetPackageByID(packageID uint) (*models.SongPackage, error) {
	var pkg models.SongPackage
	if err := s.db.First(&pkg, packageID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPackageNotFound
		}
		return nil, err
	}
	return &pkg, nil
}

func (s *PackageService) DeletePackage(packageID uint, userID uint) error {
	var pkg models.SongPackage
	if err := s.db.Where("id = ? AND user_id = ?", packageID, userID).First(&pkg).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrPackageNotFound
		}
		return err
	}

	// A package referenced by a live session must stay until the session is
	// torn down.
	var count int64
	if err := s.db.Model(&models.Session{}).
		Where("package_id = ? AND status != ?", packageID, models.StatusFinished).
		Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return errors.New("package is in use by an unfinished session")
	}

	return s.db.Delete(&models.SongPackage{}, packageID).Error
}
