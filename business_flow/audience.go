package businessflow

import (
	"context"

	"github.com/calyxsuite/outreach/models"
	"github.com/calyxsuite/outreach/repository"
)

// AudienceResolver produces the contact stream a campaign will broadcast to
type AudienceResolver interface {
	Resolve(ctx context.Context, campaign *models.Campaign) (repository.ContactIterator, error)
	Count(ctx context.Context, campaign *models.Campaign) (int64, error)
}

// AudienceResolverImpl implements the audience resolution business flow
type AudienceResolverImpl struct {
	contactRepo repository.ContactRepository
	segmentRepo repository.SegmentRepository
}

// NewAudienceResolver creates a new audience resolver instance
func NewAudienceResolver(
	contactRepo repository.ContactRepository,
	segmentRepo repository.SegmentRepository,
) AudienceResolver {
	return &AudienceResolverImpl{
		contactRepo: contactRepo,
		segmentRepo: segmentRepo,
	}
}

// Resolve opens a forward-only cursor over the campaign's eligible contacts,
// ordered by contact id ascending. The caller owns the iterator and must close
// it; calling Resolve again restarts the stream from the beginning. With no
// segment attached, the audience is every contact of every client owned by
// the campaign's user.
func (r *AudienceResolverImpl) Resolve(ctx context.Context, campaign *models.Campaign) (repository.ContactIterator, error) {
	spec, err := r.buildSpec(ctx, campaign)
	if err != nil {
		return nil, err
	}
	return r.contactRepo.StreamAudience(ctx, *spec)
}

// Count returns the audience size without opening a cursor
func (r *AudienceResolverImpl) Count(ctx context.Context, campaign *models.Campaign) (int64, error) {
	spec, err := r.buildSpec(ctx, campaign)
	if err != nil {
		return 0, err
	}
	return r.contactRepo.CountAudience(ctx, *spec)
}

func (r *AudienceResolverImpl) buildSpec(ctx context.Context, campaign *models.Campaign) (*repository.AudienceSpec, error) {
	if campaign == nil {
		return nil, NewBusinessError("CAMPAIGN_REQUIRED", "Campaign is required", ErrCampaignNotFound)
	}
	if !campaign.Channel.Valid() {
		return nil, NewBusinessError("CAMPAIGN_CHANNEL_INVALID", "Campaign channel is invalid", ErrCampaignChannelInvalid)
	}

	spec := &repository.AudienceSpec{
		OwnerID: campaign.UserID,
		Channel: campaign.Channel,
	}

	if campaign.SegmentID == nil {
		return spec, nil
	}

	segment, err := r.segmentRepo.ByID(ctx, *campaign.SegmentID)
	if err != nil {
		return nil, NewBusinessError("SEGMENT_LOOKUP_FAILED", "Failed to lookup segment", err)
	}
	if segment == nil {
		return nil, NewBusinessError("SEGMENT_NOT_FOUND", "Segment not found", ErrSegmentNotFound)
	}
	if segment.UserID != campaign.UserID {
		return nil, NewBusinessError("SEGMENT_ACCESS_DENIED", "Segment belongs to another user", ErrSegmentAccessDenied)
	}

	if !segment.Filter.IsEmpty() {
		filter := segment.Filter
		spec.Filter = &filter
	}

	return spec, nil
}
