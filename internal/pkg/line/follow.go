package line

import (
	"context"
	"errors"

	"github.com/ManuelReschke/TrialFunnel/app/models"
	"github.com/ManuelReschke/TrialFunnel/internal/pkg/jobqueue"
	"github.com/gofiber/fiber/v2/log"
)

// Enroller binds an identity to a trial grant and journey.
type Enroller interface {
	Bind(ctx context.Context, identityRef string) (*models.TrialGrant, *models.CustomerJourney, error)
}

// FollowJobHandler enrols a new follower. Redelivered jobs find the existing
// grant and journey.
func FollowJobHandler(enroller Enroller) jobqueue.Handler {
	return func(ctx context.Context, job *jobqueue.Job) error {
		payload, err := jobqueue.ChatFollowPayloadFromMap(job.Payload)
		if err != nil {
			return err
		}
		if payload.UserID == "" {
			return errors.New("chat follow job without user id")
		}

		grant, j, err := enroller.Bind(ctx, payload.UserID)
		if err != nil {
			return err
		}
		log.Infof("[LINE] Follower enrolled: grant=%s journey=%s status=%s", grant.ID, j.ID, j.Status)
		return nil
	}
}
