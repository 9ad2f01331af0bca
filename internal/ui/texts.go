package ui

import (
	"fmt"
	"strings"

	"github.com/hackslab/mening-nomzodim-backend/internal/domain/enums"
	"github.com/hackslab/mening-nomzodim-backend/internal/domain/model"
)

const (
	Greeting = "Assalomu alaykum! \"Mening Nomzodim\" sovchilik xizmatiga xush kelibsiz.\n" +
		"E'lon joylash, nomzod raqamini olish yoki VIP kanalga qo'shilish uchun yozing."

	AskGender = "E'lon kim uchun joylanadi? Ayol kishi uchun bo'lsa \"ayol\", erkak kishi uchun bo'lsa \"erkak\" deb yozing."

	FirstAdFree = "Sizning birinchi e'loningiz bepul! Endi nomzod haqida ma'lumot, 2 ta surat va 1 ta video yuboring."

	ContentInstructions = "To'lov qabul qilindi. Endi nomzod haqida qisqacha ma'lumot yozing, " +
		"2 ta surat va 1 ta video yuboring."

	ReceiptReceived = "Chek qabul qilindi. Adminlarimiz tekshirib chiqishadi, iltimos kuting."

	ReceiptRejected = "Afsuski, yuborilgan chek tasdiqlanmadi. Iltimos, to'lovni tekshirib, haqiqiy chek suratini qayta yuboring."

	MediaAccepted = "Materiallaringiz qabul qilindi. Admin ko'rib chiqqandan so'ng e'lon joylanadi."

	MediaRejected = "Afsuski, yuborilgan materiallar talabga javob bermadi. Admin siz bilan bog'lanadi."

	MediaResetNotice = "Materiallaringiz qayta yuborish uchun ochildi. Iltimos, 2 ta surat va 1 ta video qaytadan yuboring."

	AdPublished = "Tabriklaymiz! E'loningiz kanallarga joylandi."

	EscalationAck = "Xabaringiz operatorga yetkazildi. Tez orada siz bilan bog'lanishadi."

	ResumeNotice = "Suhbat yana avtomatik rejimda davom etadi. Savollaringiz bo'lsa yozing."

	WrongContextMedia = "Hozircha sizdan surat yoki video kutilmayapti. Avval buyurtma bosqichini yakunlang."

	WrongTypeForReceipt = "To'lov cheki sifatida faqat surat qabul qilinadi. Iltimos, chek suratini yuboring."

	WrongTypeForCandidate = "Nomzod uchun faqat surat yoki video qabul qilinadi."

	StickerIgnored = "Stiker qabul qilinmaydi. Iltimos, surat yoki video yuboring."

	StorageUnavailable = "Uzr, hozircha materiallarni saqlab bo'lmayapti. Birozdan so'ng qayta urinib ko'ring."

	StorageConnectivity = "Uzr, texnik nosozlik yuz berdi. Birozdan so'ng qayta urinib ko'ring."

	GenericApology = "Uzr, hozir javob bera olmadim. Birozdan so'ng qayta yozib ko'ring."

	OrderCancelled = "Buyurtma bekor qilindi. Yana xizmatlarimiz kerak bo'lsa, bemalol yozing."

	VipReminder = "VIP obunangiz tugashiga 2 kun qoldi. Uzaytirish uchun \"vip\" deb yozing."

	VipExpired = "VIP obunangiz muddati tugadi. Qayta ulanish uchun \"vip\" deb yozing."

	ContactHowTo = "Nomzod raqamini olish uchun kanaldagi yoqqan e'lon ostidagi havolani bosing. " +
		"Shunda to'lov bosqichi avtomatik boshlanadi."

	DecisionApplied = "Qabul qilindi."

	DecisionAlready = "Bu vazifa allaqachon ko'rib chiqilgan."

	DecisionUnknown = "Noma'lum buyruq."

	DecisionFailed = "Xatolik yuz berdi. Qayta urinib ko'ring."
)

func ServiceName(orderType enums.OrderType) string {
	switch orderType {
	case enums.OrderTypeVip:
		return "VIP obuna"
	case enums.OrderTypeContact:
		return "Nomzod raqami"
	default:
		return "E'lon joylash"
	}
}

func PriceQuote(orderType enums.OrderType, amount int64) string {
	return fmt.Sprintf("%s narxi: %s so'm. Davom etamizmi? (\"ha\" yoki \"yo'q\" deb yozing)",
		ServiceName(orderType), FormatAmount(amount))
}

func PaymentInstructions(amount int64, cardNumber, cardHolder string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "To'lov summasi: %s so'm\n", FormatAmount(amount))
	fmt.Fprintf(&b, "Karta raqami: %s\n", cardNumber)
	if strings.TrimSpace(cardHolder) != "" {
		fmt.Fprintf(&b, "Karta egasi: %s\n", cardHolder)
	}
	b.WriteString("To'lovni amalga oshirgach, chek suratini shu yerga yuboring.")
	return b.String()
}

func MediaCapExceeded(kind enums.MediaKind) string {
	if kind == enums.MediaKindVideo {
		return "Bitta e'lon uchun faqat 1 ta video qabul qilinadi."
	}
	return "Bitta e'lon uchun faqat 2 ta surat qabul qilinadi."
}

func MediaProgress(photos, videos int) string {
	return fmt.Sprintf("Qabul qilindi: %d/2 surat, %d/1 video. Davom eting.", photos, videos)
}

func ContactReveal(p model.Profile) string {
	var b strings.Builder
	b.WriteString("To'lovingiz tasdiqlandi! Nomzod bilan bog'lanish ma'lumotlari:\n")
	if name := p.DisplayName(); name != "" {
		fmt.Fprintf(&b, "Ism: %s\n", name)
	}
	if strings.TrimSpace(p.Phone) != "" {
		fmt.Fprintf(&b, "Telefon: %s\n", p.Phone)
	}
	if strings.TrimSpace(p.Username) != "" {
		fmt.Fprintf(&b, "Telegram: @%s\n", p.Username)
	}
	b.WriteString("Ezgu niyatlaringiz ijobat bo'lsin!")
	return b.String()
}

func VipActivated(inviteLink string) string {
	if strings.TrimSpace(inviteLink) == "" {
		return "VIP obuna faollashtirildi. Kanal havolasi tez orada yuboriladi."
	}
	return "VIP obuna faollashtirildi! Kanalga kirish havolasi:\n" + inviteLink
}

// FormatAmount renders so'm amounts with thin thousands separation, e.g.
// 50000 -> "50 000".
func FormatAmount(amount int64) string {
	digits := fmt.Sprintf("%d", amount)
	if amount < 0 {
		digits = digits[1:]
	}
	var b strings.Builder
	lead := len(digits) % 3
	if lead > 0 {
		b.WriteString(digits[:lead])
	}
	for i := lead; i < len(digits); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(digits[i : i+3])
	}
	if amount < 0 {
		return "-" + b.String()
	}
	return b.String()
}
