package response

// ErrCode is a typed error code enum for consistent API error identification.
type ErrCode string

const (
	// ─── Authentication ────────────────────────────────────────────────
	ErrTokenRequired ErrCode = "TOKEN_REQUIRED"
	ErrTokenInvalid  ErrCode = "TOKEN_INVALID"
	ErrTokenExpired  ErrCode = "TOKEN_EXPIRED"

	// ─── Authorization ─────────────────────────────────────────────────
	ErrStudentAccessOnly ErrCode = "STUDENT_ACCESS_ONLY"

	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation     ErrCode = "VALIDATION_ERROR"
	ErrInvalidPayload ErrCode = "INVALID_PAYLOAD"
	ErrUnknownAction  ErrCode = "UNKNOWN_ACTION"

	// ─── Catalog ───────────────────────────────────────────────────────
	ErrExamNotFound        ErrCode = "EXAM_NOT_FOUND"
	ErrMockTestNotFound    ErrCode = "MOCK_TEST_NOT_FOUND"
	ErrExamNotEligible     ErrCode = "EXAM_NOT_ELIGIBLE"
	ErrInvalidPaper        ErrCode = "INVALID_QUESTION_SET"
	ErrUpstreamUnavailable ErrCode = "UPSTREAM_UNAVAILABLE"

	// ─── Session ───────────────────────────────────────────────────────
	ErrNoActiveSession  ErrCode = "NO_ACTIVE_SESSION"
	ErrSessionClosed    ErrCode = "SESSION_CLOSED"
	ErrSessionCancelled ErrCode = "SESSION_CANCELLED"
	ErrSubmitInFlight   ErrCode = "SUBMIT_IN_FLIGHT"
	ErrTimeUp           ErrCode = "TIME_UP"

	// ─── Navigation ────────────────────────────────────────────────────
	ErrBranchNotChosen    ErrCode = "BRANCH_NOT_CHOSEN"
	ErrConfidenceRequired ErrCode = "CONFIDENCE_REQUIRED"
	ErrSkipBranchParent   ErrCode = "SKIP_BRANCH_PARENT"
	ErrNoQuestions        ErrCode = "NO_QUESTIONS"
	ErrInvalidPosition    ErrCode = "INVALID_POSITION"
	ErrUnsupportedAction  ErrCode = "UNSUPPORTED_ACTION"
	ErrInvalidOption      ErrCode = "INVALID_OPTION"
	ErrInvalidConfidence  ErrCode = "INVALID_CONFIDENCE"

	// ─── Scoring ───────────────────────────────────────────────────────
	ErrScoringFailed   ErrCode = "SCORING_FAILED"
	ErrAttemptNotFound ErrCode = "ATTEMPT_NOT_FOUND"

	// ─── Rate Limiting ─────────────────────────────────────────────────
	ErrRateLimitExceeded ErrCode = "RATE_LIMIT_EXCEEDED"

	// ─── Server ────────────────────────────────────────────────────────
	ErrInternal ErrCode = "INTERNAL_ERROR"
)

// GetMessage returns a human-readable message for a given error code.
func GetMessage(code ErrCode) string {
	switch code {
	// ─── Authentication ────────────────────────────────────────────────
	case ErrTokenRequired:
		return "Token autentikasi diperlukan."
	case ErrTokenInvalid:
		return "Token autentikasi tidak valid."
	case ErrTokenExpired:
		return "Token autentikasi telah kedaluwarsa."

	// ─── Authorization ─────────────────────────────────────────────────
	case ErrStudentAccessOnly:
		return "Sumber daya ini terbatas untuk siswa."

	// ─── Validation ────────────────────────────────────────────────────
	case ErrValidation:
		return "Validasi gagal. Silakan periksa masukan Anda."
	case ErrInvalidPayload:
		return "Payload permintaan tidak valid."
	case ErrUnknownAction:
		return "Aksi tidak dikenal."

	// ─── Catalog ───────────────────────────────────────────────────────
	case ErrExamNotFound:
		return "Ujian tidak ditemukan."
	case ErrMockTestNotFound:
		return "Paket soal tidak tersedia untuk ujian ini."
	case ErrExamNotEligible:
		return "Anda belum memenuhi syarat untuk mengikuti ujian ini."
	case ErrInvalidPaper:
		return "Data soal ujian tidak valid."
	case ErrUpstreamUnavailable:
		return "Data ujian sedang tidak dapat dimuat. Silakan coba lagi."

	// ─── Session ───────────────────────────────────────────────────────
	case ErrNoActiveSession:
		return "Tidak ada sesi ujian yang aktif."
	case ErrSessionClosed:
		return "Ujian ini sudah dikumpulkan."
	case ErrSessionCancelled:
		return "Sesi ujian ini telah digantikan."
	case ErrSubmitInFlight:
		return "Jawaban sedang dikumpulkan."
	case ErrTimeUp:
		return "Waktu ujian telah habis, silakan kumpulkan jawaban."

	// ─── Navigation ────────────────────────────────────────────────────
	case ErrBranchNotChosen:
		return "Pilih salah satu cabang sebelum melanjutkan."
	case ErrConfidenceRequired:
		return "Pilih tingkat keyakinan sebelum melanjutkan."
	case ErrSkipBranchParent:
		return "Soal pilihan cabang tidak dapat dilewati."
	case ErrNoQuestions:
		return "Ujian ini tidak memiliki pertanyaan."
	case ErrInvalidPosition:
		return "Nomor soal tidak valid."
	case ErrUnsupportedAction:
		return "Aksi ini tidak berlaku untuk jenis soal ini."
	case ErrInvalidOption:
		return "Pilihan jawaban tidak valid."
	case ErrInvalidConfidence:
		return "Tingkat keyakinan tidak valid."

	// ─── Scoring ───────────────────────────────────────────────────────
	case ErrScoringFailed:
		return "Layanan penilaian gagal memproses permintaan. Silakan coba lagi."
	case ErrAttemptNotFound:
		return "Hasil ujian tidak ditemukan."

	// ─── Rate Limiting ─────────────────────────────────────────────────
	case ErrRateLimitExceeded:
		return "Terlalu banyak permintaan. Silakan coba lagi nanti."

	// ─── Server ────────────────────────────────────────────────────────
	case ErrInternal:
		return "Terjadi kesalahan server internal."
	default:
		return "Terjadi kesalahan yang tidak terduga."
	}
}
