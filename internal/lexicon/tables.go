package lexicon

// stopwords are payment-context tokens that carry no name information.
// Mixed ru/uk/en because real payment strings mix all three freely.
var stopwords = map[string]bool{
	// Russian payment boilerplate.
	"оплата": true, "платеж": true, "платёж": true, "перевод": true,
	"сумма": true, "счет": true, "счёт": true, "договор": true,
	"услуги": true, "товар": true, "аванс": true, "возврат": true,
	"ндс": true, "без": true, "по": true, "за": true, "от": true,
	"для": true, "на": true, "согласно": true, "получатель": true,
	"плательщик": true, "назначение": true,
	// Ukrainian payment boilerplate.
	"платіж": true, "переказ": true, "рахунок": true, "сума": true,
	"послуги": true, "пдв": true, "отримувач": true, "платник": true,
	"призначення": true, "згідно": true,
	// English payment boilerplate.
	"payment": true, "transfer": true, "invoice": true, "amount": true,
	"beneficiary": true, "sender": true, "ref": true, "reference": true,
	"contract": true, "services": true, "goods": true, "refund": true,
	"for": true, "to": true, "from": true, "of": true, "the": true,
}

// legalForms are organization legal-form acronyms across the jurisdictions
// this screener sees. These tokens are always organization_legal_form,
// never unknown, and suppress person-name positional heuristics.
var legalForms = map[string]bool{
	// Cyrillic.
	"ооо": true, "оао": true, "зао": true, "пао": true, "ип": true,
	"ао": true, "гуп": true, "муп": true, "нко": true, "анo": true,
	"тов": true, "пп": true, "прат": true, "пат": true, "фоп": true,
	"кп": true, "дп": true,
	// Latin.
	"llc": true, "ltd": true, "inc": true, "corp": true, "co": true,
	"gmbh": true, "ag": true, "sa": true, "srl": true, "sro": true,
	"bv": true, "nv": true, "oy": true, "ab": true, "as": true,
	"plc": true, "llp": true, "lp": true, "pte": true, "kft": true,
}

// givenNames is a seed dictionary of canonical given names. The production
// deployment extends this from the morphology oracle's dictionaries; the
// built-in set covers the high-frequency slavic and latin names payment
// text actually contains.
var givenNames = map[string]bool{
	// Russian masculine.
	"александр": true, "алексей": true, "андрей": true, "антон": true,
	"борис": true, "вадим": true, "василий": true, "виктор": true,
	"владимир": true, "григорий": true, "дмитрий": true, "евгений": true,
	"иван": true, "игорь": true, "кирилл": true, "константин": true,
	"максим": true, "михаил": true, "николай": true, "олег": true,
	"павел": true, "петр": true, "пётр": true, "роман": true,
	"сергей": true, "степан": true, "юрий": true,
	// Russian feminine.
	"александра": true, "анастасия": true, "анна": true, "валентина": true,
	"вера": true, "виктория": true, "галина": true, "дарья": true,
	"екатерина": true, "елена": true, "ирина": true, "ксения": true,
	"любовь": true, "людмила": true, "мария": true, "надежда": true,
	"наталья": true, "ольга": true, "светлана": true, "татьяна": true,
	"юлия": true,
	// Ukrainian.
	"андрій": true, "богдан": true, "володимир": true, "дмитро": true,
	"іван": true, "микола": true, "олександр": true, "олексій": true,
	"остап": true, "петро": true, "сергій": true, "тарас": true,
	"катерина": true, "оксана": true, "олена": true,
	"соломія": true, "христина": true, "юлія": true,
	// Latin/transliterated.
	"alexander": true, "andrew": true, "anna": true, "david": true,
	"elena": true, "ivan": true, "john": true, "maria": true,
	"michael": true, "nikolai": true, "olga": true, "peter": true,
	"sergei": true, "victor": true, "vladimir": true, "yuri": true,
}

// diminutives maps colloquial given-name forms to their canonical name.
// Applied only to tokens already tagged given.
var diminutives = map[string]string{
	"саша":    "александр",
	"шура":    "александр",
	"алеша":   "алексей",
	"алёша":   "алексей",
	"андрюша": "андрей",
	"боря":    "борис",
	"вася":    "василий",
	"витя":    "виктор",
	"володя":  "владимир",
	"вова":    "владимир",
	"гриша":   "григорий",
	"дима":    "дмитрий",
	"женя":    "евгений",
	"ваня":    "иван",
	"костя":   "константин",
	"миша":    "михаил",
	"коля":    "николай",
	"паша":    "павел",
	"петя":    "петр",
	"сережа":  "сергей",
	"серёжа":  "сергей",
	"юра":     "юрий",
	"настя":   "анастасия",
	"аня":     "анна",
	"вика":    "виктория",
	"даша":    "дарья",
	"катя":    "екатерина",
	"лена":    "елена",
	"ира":     "ирина",
	"люда":    "людмила",
	"маша":    "мария",
	"надя":    "надежда",
	"наташа":  "наталья",
	"оля":     "ольга",
	"света":   "светлана",
	"таня":    "татьяна",
	"юля":     "юлия",
	"sasha":   "alexander",
	"misha":   "michael",
	"kolya":   "nikolai",
}

// Surname suffix heuristics, longest first so the match is unambiguous.
var (
	ruSurnameSuffixes = []string{
		"ов", "ова", "ев", "ева", "ёв", "ёва", "ин", "ина", "ын", "ына",
		"ский", "ская", "цкий", "цкая", "ой", "ых", "их", "ко",
		"ову", "ым", "овым", "овой", "иным", "ине", // common oblique forms
	}
	ukSurnameSuffixes = []string{
		"енко", "єнко", "ук", "юк", "чук", "ак", "як", "ий", "а",
		"ський", "ська", "цький", "цька", "ко",
	}
	enSurnameSuffixes = []string{
		"ov", "ova", "ev", "eva", "in", "ina", "sky", "skaya", "enko",
		"uk", "yuk", "chuk", "son", "man",
	}
	feminineSurnameSuffixes = []string{
		"ова", "ева", "ёва", "ина", "ына", "ская", "цкая", "ська", "цька",
		"ova", "eva", "ina", "skaya",
	}
)

// Patronymic suffix rules per language.
var (
	ruPatronymicSuffixes = []string{
		"ович", "евич", "ьич", "ич", "овна", "евна", "ична", "инична",
	}
	ukPatronymicSuffixes = []string{
		"ович", "йович", "івна", "ївна", "евич",
	}
	translitPatronymicSuffixes = []string{
		"ovich", "evich", "ovna", "evna", "ivna",
	}
)
