package domain

// CauseLabel is one of the eight heuristic root-cause categories a symptom can be attributed to.
type CauseLabel string

const (
	CauseMicrocirculation CauseLabel = "微循环"
	CauseConstitution     CauseLabel = "体质"
	CauseToxin            CauseLabel = "毒素"
	CauseHabit            CauseLabel = "习惯"
	CauseNutrition        CauseLabel = "营养"
	CauseEndocrine        CauseLabel = "内分泌"
	CauseImmunity         CauseLabel = "免疫力"
	CauseQiBlood          CauseLabel = "气血"
)

// CauseLabels lists the cause vocabulary in declaration order.
var CauseLabels = []CauseLabel{
	CauseMicrocirculation,
	CauseConstitution,
	CauseToxin,
	CauseHabit,
	CauseNutrition,
	CauseEndocrine,
	CauseImmunity,
	CauseQiBlood,
}

// IsValid reports whether the label belongs to the cause vocabulary.
func (c CauseLabel) IsValid() bool {
	return contains(CauseLabels, c)
}

func (c CauseLabel) String() string { return string(c) }

// Organ is a traditional-medicine organ association bucket.
type Organ string

const (
	OrganLiver   Organ = "肝"
	OrganStomach Organ = "胃"
	OrganKidney  Organ = "肾"
	OrganSpleen  Organ = "脾"
	OrganGeneral Organ = "综合"
)

// Organs lists the organ vocabulary in declaration order.
var Organs = []Organ{OrganLiver, OrganStomach, OrganKidney, OrganSpleen, OrganGeneral}

// IsValid reports whether the organ belongs to the organ vocabulary.
func (o Organ) IsValid() bool {
	return contains(Organs, o)
}

func (o Organ) String() string { return string(o) }

// Constitution is a heuristic body-type pattern derived from cause mappings.
type Constitution string

const (
	ConstitutionBloodDeficiency Constitution = "血虚"
	ConstitutionColdNature      Constitution = "寒凉"
	ConstitutionQiDeficiency    Constitution = "气虚"
	ConstitutionYangDeficiency  Constitution = "阳虚"
	ConstitutionYinDeficiency   Constitution = "阴虚"
	ConstitutionBloodStasis     Constitution = "血瘀"
	ConstitutionQiStagnation    Constitution = "气郁"
	ConstitutionDampHeat        Constitution = "湿热"
	ConstitutionPhlegmDamp      Constitution = "痰湿"
)

// Constitutions lists the constitution vocabulary in declaration order.
var Constitutions = []Constitution{
	ConstitutionBloodDeficiency,
	ConstitutionColdNature,
	ConstitutionQiDeficiency,
	ConstitutionYangDeficiency,
	ConstitutionYinDeficiency,
	ConstitutionBloodStasis,
	ConstitutionQiStagnation,
	ConstitutionDampHeat,
	ConstitutionPhlegmDamp,
}

// IsValid reports whether the constitution belongs to the constitution vocabulary.
func (c Constitution) IsValid() bool {
	return contains(Constitutions, c)
}

func (c Constitution) String() string { return string(c) }

// Emotion is an emotional-state indicator.
type Emotion string

const (
	EmotionAnger       Emotion = "怒"
	EmotionOverstress  Emotion = "压力过大"
	EmotionRumination  Emotion = "思"
	EmotionDepression  Emotion = "抑郁"
	EmotionTension     Emotion = "紧张"
	EmotionLowMood     Emotion = "心情不好"
	EmotionGrief       Emotion = "哀"
	EmotionAnxiety     Emotion = "焦虑"
	EmotionAgitation   Emotion = "激动"
	EmotionFear        Emotion = "恐"
	EmotionImbalance   Emotion = "情志失调"
	EmotionFright      Emotion = "惊"
	EmotionMentalState Emotion = "精神"
)

// Emotions lists the emotion vocabulary in declaration order.
var Emotions = []Emotion{
	EmotionAnger,
	EmotionOverstress,
	EmotionRumination,
	EmotionDepression,
	EmotionTension,
	EmotionLowMood,
	EmotionGrief,
	EmotionAnxiety,
	EmotionAgitation,
	EmotionFear,
	EmotionImbalance,
	EmotionFright,
	EmotionMentalState,
}

func (e Emotion) String() string { return string(e) }

// TrendRisk is a health-trend risk category.
type TrendRisk string

const (
	TrendTrauma              TrendRisk = "外伤"
	TrendHeredity            TrendRisk = "遗传"
	TrendHypertension        TrendRisk = "高血压"
	TrendInsomnia            TrendRisk = "失眠"
	TrendDiabetes            TrendRisk = "糖尿病"
	TrendGlaucoma            TrendRisk = "青光眼"
	TrendCommonCold          TrendRisk = "感冒"
	TrendCervicalSpondylosis TrendRisk = "颈椎病"
	TrendTumor               TrendRisk = "肿瘤"
	TrendHyperthyroidism     TrendRisk = "甲亢"
	TrendIndigestion         TrendRisk = "消化不良"
	TrendMalnutrition        TrendRisk = "营养不良"
)

// TrendRisks lists the trend vocabulary in declaration order.
var TrendRisks = []TrendRisk{
	TrendTrauma,
	TrendHeredity,
	TrendHypertension,
	TrendInsomnia,
	TrendDiabetes,
	TrendGlaucoma,
	TrendCommonCold,
	TrendCervicalSpondylosis,
	TrendTumor,
	TrendHyperthyroidism,
	TrendIndigestion,
	TrendMalnutrition,
}

func (t TrendRisk) String() string { return string(t) }

// Habit is a lifestyle habit indicator.
type Habit string

const (
	HabitLateNights        Habit = "熬夜"
	HabitEyeStrain         Habit = "用眼过度"
	HabitOverwork          Habit = "过劳"
	HabitLackOfExercise    Habit = "运动过少"
	HabitColdFood          Habit = "贪凉"
	HabitRadiation         Habit = "辐射"
	HabitIrregularSchedule Habit = "作息不规律"
	HabitLowWaterIntake    Habit = "饮水过少"
	HabitSedentary         Habit = "久坐"
)

// Habits lists the habit vocabulary in declaration order.
var Habits = []Habit{
	HabitLateNights,
	HabitEyeStrain,
	HabitOverwork,
	HabitLackOfExercise,
	HabitColdFood,
	HabitRadiation,
	HabitIrregularSchedule,
	HabitLowWaterIntake,
	HabitSedentary,
}

func (h Habit) String() string { return string(h) }

// Mineral is a mineral nutrient code.
type Mineral string

const (
	MineralCalcium    Mineral = "钙"
	MineralZinc       Mineral = "锌"
	MineralSelenium   Mineral = "硒"
	MineralMagnesium  Mineral = "镁"
	MineralChromium   Mineral = "铬"
	MineralManganese  Mineral = "锰"
	MineralIron       Mineral = "铁"
	MineralPhosphorus Mineral = "磷"
)

// Minerals lists the mineral vocabulary in declaration order.
var Minerals = []Mineral{
	MineralCalcium,
	MineralZinc,
	MineralSelenium,
	MineralMagnesium,
	MineralChromium,
	MineralManganese,
	MineralIron,
	MineralPhosphorus,
}

func (m Mineral) String() string { return string(m) }

// Vitamin is a vitamin code. B1_ and D_ are distinct codes kept from the source catalog.
type Vitamin string

const (
	VitaminA     Vitamin = "A"
	VitaminC     Vitamin = "C"
	VitaminE     Vitamin = "E"
	VitaminB1    Vitamin = "B1"
	VitaminB2    Vitamin = "B2"
	VitaminB3    Vitamin = "B3"
	VitaminB5    Vitamin = "B5"
	VitaminB6    Vitamin = "B6"
	VitaminB7    Vitamin = "B7"
	VitaminB9    Vitamin = "B9"
	VitaminB12   Vitamin = "B12"
	VitaminB1Alt Vitamin = "B1_"
	VitaminDAlt  Vitamin = "D_"
	VitaminF     Vitamin = "F"
	VitaminM     Vitamin = "M"
	VitaminP     Vitamin = "P"
)

// Vitamins lists the vitamin vocabulary in declaration order.
var Vitamins = []Vitamin{
	VitaminA,
	VitaminC,
	VitaminE,
	VitaminB1,
	VitaminB2,
	VitaminB3,
	VitaminB5,
	VitaminB6,
	VitaminB7,
	VitaminB9,
	VitaminB12,
	VitaminB1Alt,
	VitaminDAlt,
	VitaminF,
	VitaminM,
	VitaminP,
}

func (v Vitamin) String() string { return string(v) }

// IsBGroup reports whether the code names a B-group vitamin.
func (v Vitamin) IsBGroup() bool {
	return len(v) > 0 && v[0] == 'B'
}

func contains[K comparable](set []K, k K) bool {
	for _, v := range set {
		if v == k {
			return true
		}
	}
	return false
}
