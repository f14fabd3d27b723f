package production

import "fmt"

// Named remote operations carried by queued actions. The ledger's stored
// procedures are keyed by these strings.
const (
	ActionPlantCrop          = "plant_crop"
	ActionHarvestPlot        = "harvest_plot"
	ActionStartFactory       = "start_factory"
	ActionCollectFactory     = "collect_factory"
	ActionStartArmory        = "start_armory"
	ActionCollectArmory      = "collect_armory"
	ActionStartZooProduction = "start_zoo_production"
	ActionCollectZooProduct  = "collect_zoo_production"
	ActionStartBreeding      = "start_breeding"
	ActionCollectBreeding    = "collect_breeding"
)

var startActions = map[Kind]string{
	KindCrop:          ActionPlantCrop,
	KindFactoryRecipe: ActionStartFactory,
	KindArmoryRecipe:  ActionStartArmory,
	KindZooProduction: ActionStartZooProduction,
	KindZooBreeding:   ActionStartBreeding,
}

var collectActions = map[Kind]string{
	KindCrop:          ActionHarvestPlot,
	KindFactoryRecipe: ActionCollectFactory,
	KindArmoryRecipe:  ActionCollectArmory,
	KindZooProduction: ActionCollectZooProduct,
	KindZooBreeding:   ActionCollectBreeding,
}

// StartActionType returns the start-work action type for a slot kind
func StartActionType(k Kind) (string, error) {
	if a, ok := startActions[k]; ok {
		return a, nil
	}
	return "", fmt.Errorf("no start action for kind %s", k)
}

// CollectActionType returns the collect action type for a slot kind
func CollectActionType(k Kind) (string, error) {
	if a, ok := collectActions[k]; ok {
		return a, nil
	}
	return "", fmt.Errorf("no collect action for kind %s", k)
}

// KindForAction resolves an action type back to its slot kind.
// The second return distinguishes collect actions from start actions.
func KindForAction(actionType string) (kind Kind, isCollect bool, err error) {
	for k, a := range startActions {
		if a == actionType {
			return k, false, nil
		}
	}
	for k, a := range collectActions {
		if a == actionType {
			return k, true, nil
		}
	}
	return "", false, fmt.Errorf("unknown action type: %s", actionType)
}
