package contract

import "fmt"

func queryValue(deps Deps, key string) (ValueResponse, error) {
	v, found, err := store.MayLoad(deps.Storage, key)
	if err != nil {
		return ValueResponse{}, fmt.Errorf("load value: %w", err)
	}
	res := ValueResponse{Key: key}
	if found {
		res.Value = &v
	}
	return res, nil
}

func queryConfig(deps Deps) (ConfigResponse, error) {
	fee, err := storageFee.Load(deps.Storage)
	if err != nil {
		return ConfigResponse{}, fmt.Errorf("load storage fee: %w", err)
	}
	current, err := owner.Load(deps.Storage)
	if err != nil {
		return ConfigResponse{}, fmt.Errorf("load owner: %w", err)
	}
	return ConfigResponse{Owner: current, BaseFee: fee}, nil
}
