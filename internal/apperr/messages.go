package apperr

import (
	"errors"
	"strconv"

	goi18n "github.com/nicksnyder/go-i18n/v2/i18n"
	"golang.org/x/text/language"

	"github.com/fekuna/omnipos-lending-service/pkg/i18n"
)

var english = []*goi18n.Message{
	{ID: "invalid_input", Other: "Some fields are invalid."},
	{ID: "invalid_reason", Other: "Please give a rejection reason of at least 3 characters."},
	{ID: "not_pending", Other: "This loan request has already been processed."},
	{ID: "not_approved", Other: "This loan has not been approved yet."},
	{ID: "not_borrowed", Other: "This loan is not currently borrowed."},
	{ID: "already_returned", Other: "This loan has already been returned."},
	{ID: "not_awaiting_confirmation", Other: "This return has already been confirmed."},
	{ID: "equipment_unavailable", Other: "This equipment cannot be borrowed right now."},
	{ID: "insufficient_stock", Other: "Not enough stock. {{.Remaining}} unit(s) can still be approved."},
	{ID: "payment_not_confirmed", Other: "Payment of the fine must be confirmed first."},
	{ID: "loan_not_found", Other: "Loan not found."},
	{ID: "equipment_not_found", Other: "Equipment not found."},
	{ID: "return_not_found", Other: "Return not found."},
	{ID: "concurrent_update", Other: "Someone else changed this item at the same time. Please try again."},
	{ID: "internal", Other: "Something went wrong, please try again."},
}

var indonesian = []*goi18n.Message{
	{ID: "invalid_input", Other: "Beberapa isian tidak valid."},
	{ID: "invalid_reason", Other: "Alasan penolakan minimal 3 karakter."},
	{ID: "not_pending", Other: "Pengajuan peminjaman ini sudah diproses."},
	{ID: "not_approved", Other: "Peminjaman ini belum disetujui."},
	{ID: "not_borrowed", Other: "Peminjaman ini tidak sedang dipinjam."},
	{ID: "already_returned", Other: "Peminjaman ini sudah dikembalikan."},
	{ID: "not_awaiting_confirmation", Other: "Pengembalian ini sudah dikonfirmasi."},
	{ID: "equipment_unavailable", Other: "Alat ini tidak dapat dipinjam saat ini."},
	{ID: "insufficient_stock", Other: "Stok tidak mencukupi. Sisa {{.Remaining}} unit yang masih bisa disetujui."},
	{ID: "payment_not_confirmed", Other: "Pembayaran denda harus dikonfirmasi terlebih dahulu."},
	{ID: "loan_not_found", Other: "Peminjaman tidak ditemukan."},
	{ID: "equipment_not_found", Other: "Alat tidak ditemukan."},
	{ID: "return_not_found", Other: "Pengembalian tidak ditemukan."},
	{ID: "concurrent_update", Other: "Data ini sedang diubah oleh pengguna lain. Silakan coba lagi."},
	{ID: "internal", Other: "Terjadi kesalahan, silakan coba lagi."},
}

func RegisterMessages(t *i18n.Translator) error {
	if err := t.Add(language.English, english...); err != nil {
		return err
	}
	return t.Add(language.Indonesian, indonesian...)
}

// Localize renders the user-facing message for err.
func Localize(t *i18n.Translator, err error, langs ...string) string {
	var e *Error
	if !errors.As(err, &e) {
		return t.Localize("internal", nil, langs...)
	}
	data := map[string]interface{}{}
	if e.Remaining != nil {
		data["Remaining"] = strconv.Itoa(*e.Remaining)
	}
	return t.Localize(e.Code, data, langs...)
}
