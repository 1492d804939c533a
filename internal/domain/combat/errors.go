package combat

import (
	apperrors "rpg-narrative-api/pkg/errors"
)

func errInvalidInput(detail string) error {
	return apperrors.ErrInvalidInput.WithDetail(detail)
}

func errInvalidTarget(detail string) error {
	return apperrors.ErrInvalidTarget.WithDetail(detail)
}

func errCombatInactive(detail string) error {
	return apperrors.ErrCombatInactive.WithDetail(detail)
}
