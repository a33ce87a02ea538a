package core

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"go.uber.org/zap"

	"lemonhealth.app/backend/internal/apperr"
	"lemonhealth.app/backend/internal/storage"
	"lemonhealth.app/backend/internal/store"
)

// Ranges accepted by the profile API.
const (
	minHeightCM  = 50.0
	maxHeightCM  = 250.0
	minHeightFT  = 2.0
	maxHeightFT  = 8.0
	minWeightKG  = 20.0
	maxWeightKG  = 500.0
	minWeightLBS = 44.1
	maxWeightLBS = 1102.3

	maxPictureBytes = 5 << 20
)

type ProfileInput struct {
	DateOfBirth *string  `json:"date_of_birth"`
	Height      *float64 `json:"height"`
	HeightUnit  string   `json:"height_unit"`
	Weight      *float64 `json:"weight"`
	WeightUnit  string   `json:"weight_unit"`
	Gender      *string  `json:"gender"`
}

// ProfileView is the profile as returned to clients.
type ProfileView struct {
	*store.Profile
	FullName string `json:"full_name"`
	Age      *int   `json:"age"`
}

type ProfileService struct {
	store    *store.Store
	uploader storage.Uploader
	logger   *zap.Logger
	now      func() time.Time
}

func NewProfileService(db *store.Store, uploader storage.Uploader, logger *zap.Logger) *ProfileService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProfileService{store: db, uploader: uploader, logger: logger, now: time.Now}
}

// Get returns the user's profile, or an empty one when none exists yet.
func (s *ProfileService) Get(ctx context.Context, user *store.User) (*ProfileView, error) {
	p, err := s.store.GetProfile(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		p = &store.Profile{UserID: user.ID, HeightUnit: "cm", WeightUnit: "kg"}
	}
	return s.view(p, user), nil
}

// Save validates in and replaces the profile attributes.
func (s *ProfileService) Save(ctx context.Context, user *store.User, in ProfileInput) (*ProfileView, error) {
	p, err := s.validate(in)
	if err != nil {
		return nil, err
	}
	p.UserID = user.ID
	saved, err := s.store.SaveProfile(ctx, p)
	if err != nil {
		return nil, err
	}
	return s.view(saved, user), nil
}

func (s *ProfileService) Delete(ctx context.Context, userID int64) error {
	removed, err := s.store.DeleteProfile(ctx, userID)
	if err != nil {
		return err
	}
	if !removed {
		return apperr.New(apperr.ProfileNotFound)
	}
	return nil
}

func (s *ProfileService) UploadPicture(ctx context.Context, user *store.User, filename, contentType string, data []byte) (*ProfileView, error) {
	if !strings.HasPrefix(contentType, "image/") || len(data) == 0 || len(data) > maxPictureBytes {
		return nil, apperr.New(apperr.UnsupportedFile)
	}
	url, err := s.uploader.UploadBytes(ctx, path.Join("profile_pictures", fmt.Sprint(user.ID)), filename, data)
	if err != nil {
		return nil, fmt.Errorf("failed to upload profile picture: %w", err)
	}
	p, err := s.store.SetProfilePicture(ctx, user.ID, url)
	if err != nil {
		return nil, err
	}
	return s.view(p, user), nil
}

func (s *ProfileService) validate(in ProfileInput) (*store.Profile, error) {
	fields := map[string]string{}
	p := &store.Profile{HeightUnit: strings.ToLower(in.HeightUnit), WeightUnit: strings.ToLower(in.WeightUnit)}
	if p.HeightUnit == "" {
		p.HeightUnit = "cm"
	}
	if p.WeightUnit == "" {
		p.WeightUnit = "kg"
	}
	if p.HeightUnit != "cm" && p.HeightUnit != "ft" {
		fields["height_unit"] = "must be cm or ft"
	}
	if p.WeightUnit != "kg" && p.WeightUnit != "lbs" {
		fields["weight_unit"] = "must be kg or lbs"
	}
	if in.DateOfBirth != nil && *in.DateOfBirth != "" {
		dob, err := time.Parse("2006-01-02", *in.DateOfBirth)
		switch {
		case err != nil:
			fields["date_of_birth"] = "must be a date in YYYY-MM-DD format"
		case !dob.Before(s.now()):
			fields["date_of_birth"] = "must be in the past"
		default:
			p.DateOfBirth = &dob
		}
	}
	if in.Gender != nil && *in.Gender != "" {
		g := strings.ToLower(strings.TrimSpace(*in.Gender))
		if g != "male" && g != "female" && g != "other" {
			fields["gender"] = "must be male, female or other"
		} else {
			p.Gender = &g
		}
	}
	if len(fields) > 0 {
		return nil, apperr.Invalid(fields)
	}

	rng := map[string]string{}
	if in.Height != nil {
		lo, hi := minHeightCM, maxHeightCM
		if p.HeightUnit == "ft" {
			lo, hi = minHeightFT, maxHeightFT
		}
		if *in.Height < lo || *in.Height > hi {
			rng["height"] = fmt.Sprintf("must be between %g and %g %s", lo, hi, p.HeightUnit)
		}
		p.Height = in.Height
	}
	if in.Weight != nil {
		lo, hi := minWeightKG, maxWeightKG
		if p.WeightUnit == "lbs" {
			lo, hi = minWeightLBS, maxWeightLBS
		}
		if *in.Weight < lo || *in.Weight > hi {
			rng["weight"] = fmt.Sprintf("must be between %g and %g %s", lo, hi, p.WeightUnit)
		}
		p.Weight = in.Weight
	}
	if len(rng) > 0 {
		return nil, &apperr.Error{Kind: apperr.ProfileOutOfRange, Fields: rng}
	}
	return p, nil
}

func (s *ProfileService) view(p *store.Profile, user *store.User) *ProfileView {
	v := &ProfileView{Profile: p, FullName: user.FullName()}
	if p.DateOfBirth != nil {
		age := AgeOn(*p.DateOfBirth, s.now())
		v.Age = &age
	}
	return v
}
