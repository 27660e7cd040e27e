package prompt

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSystemListsEveryNonReferralCode(t *testing.T) {
	sys := System()
	assert.Contains(t, sys, "(I10,J00,K30,R51,M79.1,A09,J06.9,L20,E11.9,H10.1)")
	assert.Contains(t, sys, "proposed_referrals:[{code,description,kompetensi,clinical_reasoning}x3]")
}

func TestUserPrompt(t *testing.T) {
	p := User(`Sakit "tenggorokan" faringitis akut`)

	assert.Contains(t, p, `KASUS: "Sakit 'tenggorokan' faringitis akut"`)
	assert.Contains(t, p, "J06.9 - ISPA Akut, L20 - Dermatitis Atopik (Ringan)")
	assert.Contains(t, p, "[Paling Aman] → [Moderat] → [Agresif Valid]")
	assert.Contains(t, p, "WAJIB 3 opsi")
}

func TestNonReferralCodes(t *testing.T) {
	assert.Equal(t, []string{"I10", "J00", "K30", "R51", "M79.1", "A09", "J06.9", "L20", "E11.9", "H10.1"}, NonReferralCodes())
}
