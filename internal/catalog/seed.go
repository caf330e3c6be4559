package catalog

import "github.com/kuapa/kuapa/backend/internal/models"

// Seed returns the built-in reference conditions shipped with the app.
func Seed() []models.Condition {
	return []models.Condition{
		{
			ID:             "black-pod",
			Name:           "Black Pod Disease",
			ScientificName: "Phytophthora palmivora",
			AffectedCrops:  []models.CropType{models.CropCocoa},
			Description:    "Fungal-like infection that rots cocoa pods, spreading fastest in wet seasons.",
			Symptoms: []string{
				"Brown to black spots on pods that spread rapidly",
				"White mould on the surface of infected pods",
				"Internal rotting of beans",
			},
			Causes: []string{"High humidity", "Poor drainage", "Infected pods left on trees"},
			Treatment: models.Treatment{
				Cultural: []string{"Remove and destroy infected pods weekly", "Prune to improve air flow"},
				Organic:  []string{"Apply copper-based fungicide at 3-4 week intervals"},
				Chemical: []string{"Metalaxyl-based fungicides as directed by extension officers"},
			},
			Prevention: []string{"Harvest ripe pods frequently", "Maintain canopy shade at moderate levels"},
			Severity:   models.SeverityHigh,
		},
		{
			ID:             "swollen-shoot",
			Name:           "Cocoa Swollen Shoot Virus",
			ScientificName: "Cacao swollen shoot virus",
			AffectedCrops:  []models.CropType{models.CropCocoa},
			Description:    "Viral disease spread by mealybugs that kills trees within a few years.",
			Symptoms: []string{
				"Swelling of shoots and roots",
				"Red vein banding on young leaves",
				"Rounded smaller pods",
			},
			Causes: []string{"Mealybug transmission", "Planting infected material"},
			Treatment: models.Treatment{
				Cultural: []string{"Cut out and replant infected trees and their neighbours"},
				Organic:  []string{"Control mealybugs with neem extract"},
				Chemical: []string{"No chemical cure; insecticides only reduce vectors"},
			},
			Prevention: []string{"Use tolerant varieties", "Keep barrier crops around new farms"},
			Severity:   models.SeverityCritical,
		},
		{
			ID:             "cassava-mosaic",
			Name:           "Cassava Mosaic Disease",
			ScientificName: "Cassava mosaic geminiviruses",
			AffectedCrops:  []models.CropType{models.CropCassava},
			Description:    "Whitefly-borne virus causing leaf distortion and heavy yield loss.",
			Symptoms: []string{
				"Yellow or pale green mosaic on leaves",
				"Leaf curling and distortion",
				"Stunted plants",
			},
			Causes: []string{"Whitefly transmission", "Infected stem cuttings"},
			Treatment: models.Treatment{
				Cultural: []string{"Uproot and burn diseased plants"},
				Organic:  []string{"Use yellow sticky traps for whiteflies"},
				Chemical: []string{"Systemic insecticides against whiteflies where severe"},
			},
			Prevention: []string{"Plant clean cuttings from certified sources", "Grow resistant varieties"},
			Severity:   models.SeverityHigh,
		},
		{
			ID:             "maize-streak",
			Name:           "Maize Streak Virus",
			ScientificName: "Maize streak virus",
			AffectedCrops:  []models.CropType{models.CropMaize},
			Description:    "Leafhopper-transmitted virus producing narrow chlorotic streaks.",
			Symptoms: []string{
				"Broken yellow streaks along leaf veins",
				"Stunted growth",
				"Poorly filled cobs",
			},
			Causes: []string{"Leafhopper transmission", "Late planting"},
			Treatment: models.Treatment{
				Cultural: []string{"Remove infected plants early"},
				Organic:  []string{"Intercrop with legumes to reduce leafhoppers"},
				Chemical: []string{"Seed dressing with approved insecticide"},
			},
			Prevention: []string{"Plant early in the season", "Use tolerant hybrids"},
			Severity:   models.SeverityMedium,
		},
		{
			ID:             "black-sigatoka",
			Name:           "Black Sigatoka",
			ScientificName: "Mycosphaerella fijiensis",
			AffectedCrops:  []models.CropType{models.CropPlantain},
			Description:    "Leaf spot disease that reduces photosynthesis and bunch weight.",
			Symptoms: []string{
				"Dark brown streaks on the underside of leaves",
				"Leaves drying out prematurely",
			},
			Causes: []string{"Wind-borne spores", "Dense planting"},
			Treatment: models.Treatment{
				Cultural: []string{"Remove and bury affected leaves"},
				Organic:  []string{"Improve drainage and spacing"},
				Chemical: []string{"Alternate systemic fungicides"},
			},
			Prevention: []string{"De-leaf regularly", "Avoid overcrowding suckers"},
			Severity:   models.SeverityHigh,
		},
		{
			ID:             "rice-blast",
			Name:           "Rice Blast",
			ScientificName: "Magnaporthe oryzae",
			AffectedCrops:  []models.CropType{models.CropRice},
			Description:    "Fungal disease attacking leaves, nodes and panicles.",
			Symptoms: []string{
				"Diamond-shaped lesions with grey centres",
				"Neck rot causing empty panicles",
			},
			Causes: []string{"Excess nitrogen", "Long leaf wetness"},
			Treatment: models.Treatment{
				Cultural: []string{"Split nitrogen applications"},
				Organic:  []string{"Silicon-rich amendments such as rice husk ash"},
				Chemical: []string{"Tricyclazole at booting stage"},
			},
			Prevention: []string{"Use resistant varieties", "Keep fields flooded evenly"},
			Severity:   models.SeverityHigh,
		},
		{
			ID:             "late-blight",
			Name:           "Late Blight",
			ScientificName: "Phytophthora infestans",
			AffectedCrops:  []models.CropType{models.CropTomato, models.CropPepper},
			Description:    "Fast-moving blight that can destroy a field within days in cool wet weather.",
			Symptoms: []string{
				"Water-soaked lesions on leaves",
				"White growth under leaves in humid weather",
				"Firm brown rot on fruit",
			},
			Causes: []string{"Cool humid weather", "Overhead irrigation"},
			Treatment: models.Treatment{
				Cultural: []string{"Remove infected plants immediately"},
				Organic:  []string{"Copper hydroxide sprays"},
				Chemical: []string{"Mancozeb or chlorothalonil protectant sprays"},
			},
			Prevention: []string{"Water at the base of plants", "Rotate away from solanaceous crops"},
			Severity:   models.SeverityCritical,
		},
		{
			ID:             "bacterial-spot",
			Name:           "Bacterial Spot",
			ScientificName: "Xanthomonas campestris pv. vesicatoria",
			AffectedCrops:  []models.CropType{models.CropPepper, models.CropTomato},
			Description:    "Bacterial disease producing scabby spots on leaves and fruit.",
			Symptoms: []string{
				"Small dark greasy spots on leaves",
				"Raised scabby spots on fruit",
			},
			Causes: []string{"Infected seed", "Splashing rain"},
			Treatment: models.Treatment{
				Cultural: []string{"Avoid working in wet fields"},
				Organic:  []string{"Copper sprays at first symptoms"},
				Chemical: []string{},
			},
			Prevention: []string{"Use disease-free seed", "Practise two-year rotation"},
			Severity:   models.SeverityLow,
		},
	}
}
