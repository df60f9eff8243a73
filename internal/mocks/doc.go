// Package mocks provides shared mock implementations for tests.
//
// Mocks use function fields for custom behavior and fall back to default
// response values, recording every call for later assertions:
//
//	svc := &mocks.MockProgressionService{
//	    GetDailyMixFn: func(ctx context.Context, learnerID uuid.UUID) (*domain.DailyMix, error) {
//	        return &domain.DailyMix{Date: "2026-09-01"}, nil
//	    },
//	}
package mocks
