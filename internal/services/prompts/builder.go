package prompts

import (
	"fmt"
	"strings"

	"github.com/hackslab/mening-nomzodim-backend/internal/domain/enums"
	"github.com/hackslab/mening-nomzodim-backend/internal/services/steps"
	"github.com/hackslab/mening-nomzodim-backend/internal/ui"
)

const defaultPersona = `Sen "Mening Nomzodim" sovchilik xizmatining yordamchisisan. Faqat o'zbek tilida, qisqa, hurmat bilan va samimiy javob ber. Xizmatlar: turmush o'rtog'i izlash e'lonini joylash, e'londagi nomzod kontaktini olish, VIP kanalga a'zo bo'lish. To'lov faqat karta o'tkazmasi orqali qabul qilinadi va chekni rasm qilib yuborish kerak. Narxlarni o'zgartirma, chegirma va muddat haqida va'da berma.`

type Config struct {
	Template   string
	Sentinel   string
	AdFee      int64
	ContactFee int64
	VipFee     int64
}

// Builder assembles the system prompt for one reply: persona, prices, the
// current dialog step and the actions allowed in it, and the escalation
// sentinel contract.
type Builder struct {
	cfg Config
}

func NewBuilder(cfg Config) *Builder {
	return &Builder{cfg: cfg}
}

func (b *Builder) System(step enums.Step) string {
	base := strings.TrimSpace(b.cfg.Template)
	if base == "" {
		base = defaultPersona
	}

	var sb strings.Builder
	sb.WriteString(base)
	sb.WriteString("\n\n")
	fmt.Fprintf(&sb, "Narxlar: e'lon joylash %s so'm, nomzod kontakti %s so'm, VIP kanal %s so'm.\n",
		ui.FormatAmount(b.cfg.AdFee), ui.FormatAmount(b.cfg.ContactFee), ui.FormatAmount(b.cfg.VipFee))
	fmt.Fprintf(&sb, "Suhbat bosqichi: %s.\n", step)

	if actions := steps.AllowedActions(step); len(actions) > 0 {
		fmt.Fprintf(&sb, "Shu bosqichda ruxsat etilgan harakatlar: %s.\n", strings.Join(actions, ", "))
	}

	if b.cfg.Sentinel != "" {
		fmt.Fprintf(&sb, "Agar foydalanuvchi shikoyat qilsa, operator so'rasa yoki savolga ishonchli javob bera olmasang, boshqa so'z qo'shmasdan faqat %q deb javob ber.", b.cfg.Sentinel)
	}

	return sb.String()
}
